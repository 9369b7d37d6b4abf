package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mhartwig/shelfmark/internal/pkg/shortener"
)

const (
	BOOK_STATUS_TO_READ  = "to_read"
	BOOK_STATUS_READING  = "reading"
	BOOK_STATUS_FINISHED = "finished"
	BOOK_STATUS_DROPPED  = "dropped"
)

type Book struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"index" json:"user_id"`
	User        User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title" validate:"required,min=1,max=255"`
	Author      string         `gorm:"type:varchar(255)" json:"author" validate:"max=255"`
	ISBN        string         `gorm:"type:varchar(20);index" json:"isbn" validate:"max=20"`
	CoverURL    string         `gorm:"type:varchar(500)" json:"cover_url" validate:"omitempty,url,max=500"`
	Status      string         `gorm:"type:varchar(20);default:'to_read';index" json:"status" validate:"oneof=to_read reading finished dropped"`
	PageCount   int            `gorm:"default:0" json:"page_count" validate:"min=0"`
	CurrentPage int            `gorm:"default:0" json:"current_page" validate:"min=0"`
	Rating      int            `gorm:"default:0" json:"rating" validate:"min=0,max=5"`
	Review      string         `gorm:"type:text" json:"review" validate:"max=10000"`
	IsPublic    bool           `gorm:"default:false" json:"is_public"`
	ShareLink   string         `gorm:"type:varchar(255) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex" json:"share_link"`
	StartedAt   *time.Time     `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	FinishedAt  *time.Time     `gorm:"type:timestamp;default:null" json:"finished_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (b *Book) Validate() error {
	v := validator.New()
	return v.Struct(b)
}

// Progress returns reading progress in percent, clamped to 0..100.
func (b *Book) Progress() int {
	if b.PageCount <= 0 {
		return 0
	}
	p := b.CurrentPage * 100 / b.PageCount
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// SetStatus moves the book through its reading lifecycle and keeps the
// started/finished timestamps consistent.
func (b *Book) SetStatus(status string) {
	now := time.Now()
	switch status {
	case BOOK_STATUS_READING:
		if b.StartedAt == nil {
			b.StartedAt = &now
		}
		b.FinishedAt = nil
	case BOOK_STATUS_FINISHED:
		if b.StartedAt == nil {
			b.StartedAt = &now
		}
		b.FinishedAt = &now
		b.CurrentPage = b.PageCount
	case BOOK_STATUS_TO_READ:
		b.StartedAt = nil
		b.FinishedAt = nil
		b.CurrentPage = 0
	}
	b.Status = status
}

// TogglePublic flips the public sharing state.
func (b *Book) TogglePublic(db *gorm.DB) error {
	b.IsPublic = !b.IsPublic
	return db.Model(b).Update("is_public", b.IsPublic).Error
}

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ShareLink == "" {
		b.ShareLink = "temp-" + uuid.New().String()[:8]
	}
	return nil
}

func (b *Book) AfterCreate(tx *gorm.DB) error {
	if len(b.ShareLink) >= 5 && b.ShareLink[:5] == "temp-" {
		b.ShareLink = shortener.EncodeID(b.ID)
		return tx.Model(b).Update("share_link", b.ShareLink).Error
	}
	return nil
}
