package repository

import (
	"github.com/mhartwig/shelfmark/app/models"
	"gorm.io/gorm"
)

// shelfRepository implements the ShelfRepository interface
type shelfRepository struct {
	db *gorm.DB
}

// NewShelfRepository creates a new shelf repository instance
func NewShelfRepository(db *gorm.DB) ShelfRepository {
	return &shelfRepository{db: db}
}

func (r *shelfRepository) Create(shelf *models.Shelf) error {
	return r.db.Create(shelf).Error
}

func (r *shelfRepository) GetByID(id uint) (*models.Shelf, error) {
	var shelf models.Shelf
	err := r.db.Preload("Books").First(&shelf, id).Error
	if err != nil {
		return nil, err
	}
	return &shelf, nil
}

func (r *shelfRepository) GetByShareLink(shareLink string) (*models.Shelf, error) {
	var shelf models.Shelf
	err := r.db.Preload("Books").Preload("User").Where("share_link = ?", shareLink).First(&shelf).Error
	if err != nil {
		return nil, err
	}
	return &shelf, nil
}

func (r *shelfRepository) GetByUserID(userID uint) ([]models.Shelf, error) {
	var shelves []models.Shelf
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&shelves).Error
	return shelves, err
}

func (r *shelfRepository) Update(shelf *models.Shelf) error {
	return r.db.Save(shelf).Error
}

func (r *shelfRepository) Delete(id uint) error {
	return r.db.Delete(&models.Shelf{}, id).Error
}

func (r *shelfRepository) AddBook(shelfID, bookID uint) error {
	return r.db.Exec("INSERT INTO shelf_books (shelf_id, book_id) VALUES (?, ?)", shelfID, bookID).Error
}

func (r *shelfRepository) RemoveBook(shelfID, bookID uint) error {
	return r.db.Exec("DELETE FROM shelf_books WHERE shelf_id = ? AND book_id = ?", shelfID, bookID).Error
}

func (r *shelfRepository) GetBooks(shelfID uint) ([]models.Book, error) {
	var shelf models.Shelf
	if err := r.db.Preload("Books").First(&shelf, shelfID).Error; err != nil {
		return nil, err
	}
	return shelf.Books, nil
}

func (r *shelfRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Shelf{}).Count(&count).Error
	return count, err
}

func (r *shelfRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Shelf{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
