package repository

import (
	"strings"

	"github.com/mhartwig/shelfmark/app/models"
	"gorm.io/gorm"
)

// bookRepository implements the BookRepository interface
type bookRepository struct {
	db *gorm.DB
}

// NewBookRepository creates a new book repository instance
func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(book *models.Book) error {
	return r.db.Create(book).Error
}

func (r *bookRepository) GetByID(id uint) (*models.Book, error) {
	var book models.Book
	err := r.db.First(&book, id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByShareLink(shareLink string) (*models.Book, error) {
	var book models.Book
	err := r.db.Preload("User").Where("share_link = ?", shareLink).First(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByUserID(userID uint, offset, limit int) ([]models.Book, error) {
	var books []models.Book
	err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC").Offset(offset).Limit(limit).Find(&books).Error
	return books, err
}

func (r *bookRepository) GetByUserIDAndStatus(userID uint, status string, offset, limit int) ([]models.Book, error) {
	var books []models.Book
	err := r.db.Where("user_id = ? AND status = ?", userID, status).
		Order("updated_at DESC").Offset(offset).Limit(limit).Find(&books).Error
	return books, err
}

func (r *bookRepository) Update(book *models.Book) error {
	return r.db.Save(book).Error
}

func (r *bookRepository) Delete(id uint) error {
	return r.db.Delete(&models.Book{}, id).Error
}

func (r *bookRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Book{}).Count(&count).Error
	return count, err
}

func (r *bookRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Book{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// Search finds a user's books by title, author or ISBN.
func (r *bookRepository) Search(userID uint, query string) ([]models.Book, error) {
	var books []models.Book
	pattern := "%" + strings.TrimSpace(query) + "%"
	err := r.db.Where("user_id = ? AND (title LIKE ? OR author LIKE ? OR isbn LIKE ?)",
		userID, pattern, pattern, pattern).
		Order("updated_at DESC").Find(&books).Error
	return books, err
}

func (r *bookRepository) GetRecentPublic(limit int) ([]models.Book, error) {
	var books []models.Book
	err := r.db.Preload("User").Where("is_public = ?", true).
		Order("created_at DESC").Limit(limit).Find(&books).Error
	return books, err
}
