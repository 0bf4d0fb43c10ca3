package domain

import (
	"context"
	"time"
)

// KeyValueStore is the raw persistence contract shared by every backend.
// Get returns (nil, nil) when the key is absent.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// ProductRepository persists the whole product collection at once.
// found is false when nothing was ever saved.
type ProductRepository interface {
	LoadProducts(ctx context.Context) (products []*Product, found bool, err error)
	SaveProducts(ctx context.Context, products []*Product) error
}

// FavoriteRepository persists one favorites set per scope.
type FavoriteRepository interface {
	LoadFavorites(ctx context.Context, scope string) ([]int64, error)
	SaveFavorites(ctx context.Context, scope string, ids []int64) error
	FavoriteScopes(ctx context.Context) ([]string, error)
}

// UserRepository persists the session identity per scope.
type UserRepository interface {
	LoadUser(ctx context.Context, scope string) (*User, error)
	SaveUser(ctx context.Context, scope string, user *User) error
	ClearUser(ctx context.Context, scope string) error
}

// PhotoStore keeps encoded photos keyed by PhotoKey.
type PhotoStore interface {
	SavePhotos(ctx context.Context, productID int64, photos []string) error
	LoadPhotos(ctx context.Context, productID int64, count int) ([]string, error)
	DeletePhotos(ctx context.Context, productID int64) error
}

// Event subjects.
const (
	SubjectProductPublished = "product.published"
	SubjectProductUpdated   = "product.updated"
	SubjectProductDeleted   = "product.deleted"
	SubjectFavoriteToggled  = "favorite.toggled"
)

type ProductEvent struct {
	ProductID  int64     `json:"product_id"`
	SellerID   string    `json:"seller_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	Price      int64     `json:"price,omitempty"`
	Rarity     Rarity    `json:"rarity,omitempty"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type FavoriteEvent struct {
	UserID     string    `json:"user_id"`
	ProductID  int64     `json:"product_id"`
	Favorited  bool      `json:"favorited"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher emits domain events to the message bus.
type EventPublisher interface {
	PublishProductEvent(ctx context.Context, subject string, event ProductEvent) error
	PublishFavoriteEvent(ctx context.Context, event FavoriteEvent) error
}

// ModerationNotifier is told about every newly published listing.
type ModerationNotifier interface {
	NotifyPublished(ctx context.Context, product *Product) error
}
