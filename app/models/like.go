package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Like struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"index" json:"user_id"`
	User            User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ReadingUpdateID uint           `gorm:"index" json:"reading_update_id"`
	ReadingUpdate   ReadingUpdate  `gorm:"foreignKey:ReadingUpdateID" json:"reading_update,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// ToggleLike creates the like if absent, removes it otherwise. Returns true
// when the update is now liked.
func ToggleLike(db *gorm.DB, userID, readingUpdateID uint) (bool, error) {
	var like Like
	result := db.Where("user_id = ? AND reading_update_id = ?", userID, readingUpdateID).First(&like)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			newLike := Like{
				UserID:          userID,
				ReadingUpdateID: readingUpdateID,
			}
			return true, db.Create(&newLike).Error
		}
		return false, result.Error
	}

	return false, db.Delete(&like).Error
}
