package usecase

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/metrics"
	"go.uber.org/zap"
)

// Ledger is the favorites set of one scope. Insertion order is kept.
type Ledger struct {
	mu    sync.RWMutex
	scope string
	ids   []int64
	repo  domain.FavoriteRepository
}

func newLedger(scope string, ids []int64, repo domain.FavoriteRepository) *Ledger {
	l := &Ledger{scope: scope, repo: repo}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			l.ids = append(l.ids, id)
		}
	}
	return l
}

func (l *Ledger) indexOf(id int64) int {
	for i, v := range l.ids {
		if v == id {
			return i
		}
	}
	return -1
}

// Has reports membership.
func (l *Ledger) Has(id int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexOf(id) >= 0
}

// IDs returns the members in insertion order.
func (l *Ledger) IDs() []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]int64(nil), l.ids...)
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// Toggle flips membership, persists, and returns the new state. The
// in-memory set is left unchanged when persisting fails.
func (l *Ledger) Toggle(ctx context.Context, id int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := append([]int64(nil), l.ids...)
	favorited := false
	if i := l.indexOf(id); i >= 0 {
		next = append(next[:i], next[i+1:]...)
	} else {
		next = append(next, id)
		favorited = true
	}
	if err := l.repo.SaveFavorites(ctx, l.scope, next); err != nil {
		return !favorited, err
	}
	l.ids = next
	return favorited, nil
}

// Purge removes id if present. Absent ids cost no write.
func (l *Ledger) Purge(ctx context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		return nil
	}
	next := append(append([]int64(nil), l.ids[:i]...), l.ids[i+1:]...)
	if err := l.repo.SaveFavorites(ctx, l.scope, next); err != nil {
		return err
	}
	l.ids = next
	return nil
}

// Favorites hands out one ledger per scope and implements the catalog's
// cascade purge across all of them.
type Favorites struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
	repo    domain.FavoriteRepository
	events  domain.EventPublisher
	metrics *metrics.MetricsManager
	logger  *logger.Logger
	now     func() time.Time
}

func NewFavorites(repo domain.FavoriteRepository, log *logger.Logger) *Favorites {
	return &Favorites{
		ledgers: make(map[string]*Ledger),
		repo:    repo,
		logger:  log.Named("Favorites"),
		now:     time.Now,
	}
}

// WithEvents enables favorite.toggled events.
func (f *Favorites) WithEvents(p domain.EventPublisher) *Favorites {
	f.events = p
	return f
}

func (f *Favorites) WithMetrics(m *metrics.MetricsManager) *Favorites {
	f.metrics = m
	return f
}

// For returns the ledger of a scope, loading it on first use. An unreadable
// record yields an empty ledger.
func (f *Favorites) For(ctx context.Context, scope string) *Ledger {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.ledgers[scope]; ok {
		return l
	}
	ids, err := f.repo.LoadFavorites(ctx, scope)
	if err != nil {
		f.logger.Warn("favorites unreadable, starting empty", zap.String("scope", scope), zap.Error(err))
		ids = nil
	}
	l := newLedger(scope, ids, f.repo)
	f.ledgers[scope] = l
	return l
}

// Toggle flips a product in the scope's ledger and emits an event.
func (f *Favorites) Toggle(ctx context.Context, scope string, productID int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "Favorites.Toggle")
	defer span.End()

	favorited, err := f.For(ctx, scope).Toggle(ctx, productID)
	if err != nil {
		span.RecordError(err)
		return favorited, err
	}
	if f.metrics != nil {
		f.metrics.FavoriteTogglesTotal.WithLabelValues(strconv.FormatBool(favorited)).Inc()
	}
	if f.events != nil {
		ev := domain.FavoriteEvent{UserID: scope, ProductID: productID, Favorited: favorited, OccurredAt: f.now().UTC()}
		if err := f.events.PublishFavoriteEvent(ctx, ev); err != nil {
			f.logger.Warn("failed to publish favorite event", zap.Int64("product_id", productID), zap.Error(err))
		}
	}
	return favorited, nil
}

// PurgeProduct removes a product id from every persisted and loaded set.
func (f *Favorites) PurgeProduct(ctx context.Context, productID int64) error {
	scopes, err := f.repo.FavoriteScopes(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	for scope := range f.ledgers {
		scopes = append(scopes, scope)
	}
	f.mu.Unlock()

	seen := make(map[string]bool, len(scopes))
	for _, scope := range scopes {
		if seen[scope] {
			continue
		}
		seen[scope] = true
		if err := f.For(ctx, scope).Purge(ctx, productID); err != nil {
			return err
		}
	}
	return nil
}
