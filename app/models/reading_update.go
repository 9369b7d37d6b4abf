package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	UPDATE_KIND_PROGRESS = "progress"
	UPDATE_KIND_STARTED  = "started"
	UPDATE_KIND_FINISHED = "finished"
	UPDATE_KIND_REVIEW   = "review"
)

// ReadingUpdate is one post in the community feed: a progress note, a
// started/finished announcement or a review excerpt for a book.
type ReadingUpdate struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"index" json:"user_id"`
	User      User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	BookID    uint           `gorm:"index" json:"book_id"`
	Book      Book           `gorm:"foreignKey:BookID" json:"book,omitempty"`
	Kind      string         `gorm:"type:varchar(20);default:'progress'" json:"kind" validate:"oneof=progress started finished review"`
	Content   string         `gorm:"type:text" json:"content" validate:"max=5000"`
	Page      int            `gorm:"default:0" json:"page" validate:"min=0"`
	IsPublic  bool           `gorm:"default:true" json:"is_public"`
	Comments  []Comment      `gorm:"foreignKey:ReadingUpdateID" json:"comments,omitempty"`
	Likes     []Like         `gorm:"foreignKey:ReadingUpdateID" json:"likes,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *ReadingUpdate) Validate() error {
	v := validator.New()
	return v.Struct(r)
}

// LikeCount returns the number of likes on the loaded association.
func (r *ReadingUpdate) LikeCount() int {
	return len(r.Likes)
}
