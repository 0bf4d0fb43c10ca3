// Package localstore keeps the marketplace collections as JSON documents in
// any key/value backend, using the same keys the mini-app client uses in
// browser storage.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
)

const (
	KeyUser      = "hotwheels_user"
	KeyProducts  = "hotwheels_products"
	KeyFavorites = "hotwheels_favorites"
	KeyPhotos    = "product_photos"
)

// ScopedKey appends the per-user scope to a base key. The empty scope is
// the single local session.
func ScopedKey(base, scope string) string {
	if scope == "" {
		return base
	}
	return base + ":" + scope
}

// Store implements the product, favorite, user and photo repositories.
type Store struct {
	kv domain.KeyValueStore
	// photoMu serializes read-modify-write of the shared photo map
	photoMu sync.Mutex
}

func New(kv domain.KeyValueStore) *Store {
	return &Store{kv: kv}
}

func (s *Store) read(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: read %s: %v", domain.ErrPersistenceUnavailable, key, err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", domain.ErrPersistenceUnavailable, key, err)
	}
	return true, nil
}

func (s *Store) write(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrPersistenceUnavailable, key, err)
	}
	return nil
}

func (s *Store) LoadProducts(ctx context.Context) ([]*domain.Product, bool, error) {
	var products []*domain.Product
	found, err := s.read(ctx, KeyProducts, &products)
	if err != nil || !found {
		return nil, false, err
	}
	if products == nil {
		products = []*domain.Product{}
	}
	return products, true, nil
}

// SaveProducts writes the collection. Image references of products whose
// photos live in the photo store are left out of the record.
func (s *Store) SaveProducts(ctx context.Context, products []*domain.Product) error {
	out := make([]*domain.Product, len(products))
	for i, p := range products {
		if p.HasPhotos {
			c := *p
			c.Images = nil
			out[i] = &c
			continue
		}
		out[i] = p
	}
	return s.write(ctx, KeyProducts, out)
}

func (s *Store) LoadFavorites(ctx context.Context, scope string) ([]int64, error) {
	var ids []int64
	if _, err := s.read(ctx, ScopedKey(KeyFavorites, scope), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) SaveFavorites(ctx context.Context, scope string, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	return s.write(ctx, ScopedKey(KeyFavorites, scope), ids)
}

// FavoriteScopes lists every scope that has a persisted favorites set.
func (s *Store) FavoriteScopes(ctx context.Context) ([]string, error) {
	keys, err := s.kv.List(ctx, KeyFavorites)
	if err != nil {
		return nil, fmt.Errorf("%w: list favorites: %v", domain.ErrPersistenceUnavailable, err)
	}
	scopes := make([]string, 0, len(keys))
	for _, k := range keys {
		switch {
		case k == KeyFavorites:
			scopes = append(scopes, "")
		case strings.HasPrefix(k, KeyFavorites+":"):
			scopes = append(scopes, strings.TrimPrefix(k, KeyFavorites+":"))
		}
	}
	return scopes, nil
}

// LoadUser returns nil when no identity was persisted for the scope.
func (s *Store) LoadUser(ctx context.Context, scope string) (*domain.User, error) {
	var u domain.User
	found, err := s.read(ctx, ScopedKey(KeyUser, scope), &u)
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, scope string, user *domain.User) error {
	return s.write(ctx, ScopedKey(KeyUser, scope), user)
}

func (s *Store) ClearUser(ctx context.Context, scope string) error {
	if err := s.kv.Delete(ctx, ScopedKey(KeyUser, scope)); err != nil {
		return fmt.Errorf("%w: clear user: %v", domain.ErrPersistenceUnavailable, err)
	}
	return nil
}

func (s *Store) loadPhotoMap(ctx context.Context) (map[string]string, error) {
	photos := map[string]string{}
	if _, err := s.read(ctx, KeyPhotos, &photos); err != nil {
		return nil, err
	}
	if photos == nil {
		photos = map[string]string{}
	}
	return photos, nil
}

func (s *Store) SavePhotos(ctx context.Context, productID int64, photos []string) error {
	s.photoMu.Lock()
	defer s.photoMu.Unlock()

	m, err := s.loadPhotoMap(ctx)
	if err != nil {
		return err
	}
	for i, p := range photos {
		m[domain.PhotoKey(productID, i)] = p
	}
	return s.write(ctx, KeyPhotos, m)
}

// LoadPhotos returns photos 0..count-1 of a product, skipping missing keys.
func (s *Store) LoadPhotos(ctx context.Context, productID int64, count int) ([]string, error) {
	s.photoMu.Lock()
	m, err := s.loadPhotoMap(ctx)
	s.photoMu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if p, ok := m[domain.PhotoKey(productID, i)]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) DeletePhotos(ctx context.Context, productID int64) error {
	s.photoMu.Lock()
	defer s.photoMu.Unlock()

	m, err := s.loadPhotoMap(ctx)
	if err != nil {
		return err
	}
	prefix := strconv.FormatInt(productID, 10) + "_"
	removed := 0
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			delete(m, k)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	return s.write(ctx, KeyPhotos, m)
}
