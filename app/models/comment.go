package models

import (
	"time"

	"gorm.io/gorm"
)

type Comment struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"index" json:"user_id"`
	User            User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ReadingUpdateID uint           `gorm:"index" json:"reading_update_id"`
	ReadingUpdate   ReadingUpdate  `gorm:"foreignKey:ReadingUpdateID" json:"reading_update,omitempty"`
	Content         string         `gorm:"type:text" json:"content" validate:"required,min=1"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}
