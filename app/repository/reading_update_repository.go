package repository

import (
	"github.com/mhartwig/shelfmark/app/models"
	"gorm.io/gorm"
)

// readingUpdateRepository implements the ReadingUpdateRepository interface
type readingUpdateRepository struct {
	db *gorm.DB
}

// NewReadingUpdateRepository creates a new feed repository instance
func NewReadingUpdateRepository(db *gorm.DB) ReadingUpdateRepository {
	return &readingUpdateRepository{db: db}
}

func (r *readingUpdateRepository) Create(update *models.ReadingUpdate) error {
	return r.db.Create(update).Error
}

func (r *readingUpdateRepository) GetByID(id uint) (*models.ReadingUpdate, error) {
	var update models.ReadingUpdate
	err := r.db.Preload("User").Preload("Book").Preload("Likes").First(&update, id).Error
	if err != nil {
		return nil, err
	}
	return &update, nil
}

func (r *readingUpdateRepository) GetPublicFeed(offset, limit int) ([]models.ReadingUpdate, error) {
	var updates []models.ReadingUpdate
	err := r.db.Preload("User").Preload("Book").Preload("Likes").
		Where("is_public = ?", true).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&updates).Error
	return updates, err
}

func (r *readingUpdateRepository) GetByUserID(userID uint, offset, limit int) ([]models.ReadingUpdate, error) {
	var updates []models.ReadingUpdate
	err := r.db.Preload("Book").Preload("Likes").
		Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&updates).Error
	return updates, err
}

func (r *readingUpdateRepository) Delete(id uint) error {
	return r.db.Delete(&models.ReadingUpdate{}, id).Error
}

func (r *readingUpdateRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.ReadingUpdate{}).Count(&count).Error
	return count, err
}

func (r *readingUpdateRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.ReadingUpdate{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *readingUpdateRepository) AddComment(comment *models.Comment) error {
	return r.db.Create(comment).Error
}

func (r *readingUpdateRepository) GetComments(updateID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := r.db.Preload("User").Where("reading_update_id = ?", updateID).
		Order("created_at ASC").Find(&comments).Error
	return comments, err
}

func (r *readingUpdateRepository) DeleteComment(id uint) error {
	return r.db.Delete(&models.Comment{}, id).Error
}
