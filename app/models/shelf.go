package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mhartwig/shelfmark/internal/pkg/shortener"
)

type Shelf struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"index" json:"user_id"`
	User        User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title" validate:"required,min=1,max=255"`
	Description string         `gorm:"type:text" json:"description"`
	IsPublic    bool           `gorm:"default:false" json:"is_public"`
	ShareLink   string         `gorm:"type:varchar(255) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex" json:"share_link"`
	ViewCount   int            `gorm:"default:0" json:"view_count"`
	Books       []Book         `gorm:"many2many:shelf_books;" json:"books,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// IncrementViewCount bumps the public view counter.
func (s *Shelf) IncrementViewCount(db *gorm.DB) error {
	return db.Model(s).Update("view_count", s.ViewCount+1).Error
}

// TogglePublic flips the public sharing state.
func (s *Shelf) TogglePublic(db *gorm.DB) error {
	s.IsPublic = !s.IsPublic
	return db.Model(s).Update("is_public", s.IsPublic).Error
}

// AddBook places a book on the shelf.
func (s *Shelf) AddBook(db *gorm.DB, bookID uint) error {
	return db.Exec("INSERT INTO shelf_books (shelf_id, book_id) VALUES (?, ?)", s.ID, bookID).Error
}

// RemoveBook takes a book off the shelf.
func (s *Shelf) RemoveBook(db *gorm.DB, bookID uint) error {
	return db.Exec("DELETE FROM shelf_books WHERE shelf_id = ? AND book_id = ?", s.ID, bookID).Error
}

func (s *Shelf) BeforeCreate(tx *gorm.DB) error {
	if s.ShareLink == "" {
		s.ShareLink = "temp-" + uuid.New().String()[:8]
	}
	return nil
}

func (s *Shelf) AfterCreate(tx *gorm.DB) error {
	if len(s.ShareLink) >= 5 && s.ShareLink[:5] == "temp-" {
		s.ShareLink = shortener.EncodeID(s.ID)
		return tx.Model(s).Update("share_link", s.ShareLink).Error
	}
	return nil
}
