package repository

import (
	"time"

	"github.com/mhartwig/shelfmark/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	GetStatsByUserID(userID uint) (*UserStats, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
	GetWithStats(offset, limit int) ([]UserWithStats, error)
	SearchWithStats(query string) ([]UserWithStats, error)
	GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error)
}

// BookRepository defines the interface for book-related database operations
type BookRepository interface {
	Create(book *models.Book) error
	GetByID(id uint) (*models.Book, error)
	GetByShareLink(shareLink string) (*models.Book, error)
	GetByUserID(userID uint, offset, limit int) ([]models.Book, error)
	GetByUserIDAndStatus(userID uint, status string, offset, limit int) ([]models.Book, error)
	Update(book *models.Book) error
	Delete(id uint) error
	Count() (int64, error)
	CountByUserID(userID uint) (int64, error)
	Search(userID uint, query string) ([]models.Book, error)
	GetRecentPublic(limit int) ([]models.Book, error)
}

// ShelfRepository defines the interface for shelf-related database operations
type ShelfRepository interface {
	Create(shelf *models.Shelf) error
	GetByID(id uint) (*models.Shelf, error)
	GetByShareLink(shareLink string) (*models.Shelf, error)
	GetByUserID(userID uint) ([]models.Shelf, error)
	Update(shelf *models.Shelf) error
	Delete(id uint) error
	AddBook(shelfID, bookID uint) error
	RemoveBook(shelfID, bookID uint) error
	GetBooks(shelfID uint) ([]models.Book, error)
	Count() (int64, error)
	CountByUserID(userID uint) (int64, error)
}

// ReadingUpdateRepository defines the interface for feed operations
type ReadingUpdateRepository interface {
	Create(update *models.ReadingUpdate) error
	GetByID(id uint) (*models.ReadingUpdate, error)
	GetPublicFeed(offset, limit int) ([]models.ReadingUpdate, error)
	GetByUserID(userID uint, offset, limit int) ([]models.ReadingUpdate, error)
	Delete(id uint) error
	Count() (int64, error)
	CountByUserID(userID uint) (int64, error)
	AddComment(comment *models.Comment) error
	GetComments(updateID uint) ([]models.Comment, error)
	DeleteComment(id uint) error
}

// UserWithStats represents a user with additional statistics
type UserWithStats struct {
	User        models.User
	BookCount   int64
	ShelfCount  int64
	UpdateCount int64
}

// UserStats provides aggregated counts for a single user (books, shelves, feed posts).
type UserStats struct {
	BookCount   int64
	ShelfCount  int64
	UpdateCount int64
}

// Repositories struct holds all repository instances
type Repositories struct {
	User          UserRepository
	Book          BookRepository
	Shelf         ShelfRepository
	ReadingUpdate ReadingUpdateRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		Book:          NewBookRepository(db),
		Shelf:         NewShelfRepository(db),
		ReadingUpdate: NewReadingUpdateRepository(db),
	}
}
