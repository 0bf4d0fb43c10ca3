package usecase

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/metrics"
	platformtracer "github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/tracer"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = platformtracer.Tracer("usecase")

// PhotoSource is the buffered photo set handed to Publish.
type PhotoSource interface {
	Len() int
	Encode(ctx context.Context) ([]string, error)
}

// FavoritesPurger removes a deleted product from every favorites set.
type FavoritesPurger interface {
	PurgeProduct(ctx context.Context, productID int64) error
}

// SearchResult is the outcome of a search. Cleared is set for an empty
// query, which shows no results rather than the whole catalog.
type SearchResult struct {
	Query    string
	Cleared  bool
	Products []*domain.Product
}

// Catalog owns the in-memory product list. Mutations hold the lock across
// persistence so each read-modify-write is atomic for callers.
type Catalog struct {
	mu       sync.RWMutex
	products []*domain.Product
	lastID   int64
	loaded   bool

	repo      domain.ProductRepository
	photos    domain.PhotoStore
	favorites FavoritesPurger
	events    domain.EventPublisher
	notifier  domain.ModerationNotifier
	metrics   *metrics.MetricsManager
	logger    *logger.Logger
	now       func() time.Time
}

type CatalogOption func(*Catalog)

func WithFavoritesPurger(f FavoritesPurger) CatalogOption {
	return func(c *Catalog) { c.favorites = f }
}

func WithEventPublisher(p domain.EventPublisher) CatalogOption {
	return func(c *Catalog) { c.events = p }
}

func WithModerationNotifier(n domain.ModerationNotifier) CatalogOption {
	return func(c *Catalog) { c.notifier = n }
}

func WithMetrics(m *metrics.MetricsManager) CatalogOption {
	return func(c *Catalog) { c.metrics = m }
}

func WithClock(now func() time.Time) CatalogOption {
	return func(c *Catalog) { c.now = now }
}

func NewCatalog(repo domain.ProductRepository, photos domain.PhotoStore, log *logger.Logger, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		repo:   repo,
		photos: photos,
		logger: log.Named("Catalog"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads the collection. An absent or unreadable collection is replaced
// with the demo listings, which are persisted.
func (c *Catalog) Load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Catalog.Load")
	defer span.End()

	products, found, err := c.repo.LoadProducts(ctx)
	if err != nil {
		c.logger.Warn("product collection unreadable, reseeding", zap.Error(err))
		found = false
	}
	if !found {
		products = domain.DemoProducts()
		if err := c.repo.SaveProducts(ctx, products); err != nil {
			c.logger.Error("failed to persist demo listings", zap.Error(err))
		}
	}

	for _, p := range products {
		if !p.HasPhotos {
			continue
		}
		count := p.PhotoCount
		if count < 1 {
			count = 1
		}
		images, err := c.photos.LoadPhotos(ctx, p.ID, count)
		if err != nil {
			c.logger.Warn("failed to rehydrate photos", zap.Int64("product_id", p.ID), zap.Error(err))
			continue
		}
		p.Images = images
	}

	var maxID int64
	for _, p := range products {
		if p.ID > maxID {
			maxID = p.ID
		}
	}

	c.mu.Lock()
	c.products = products
	c.lastID = maxID
	c.loaded = true
	c.mu.Unlock()

	span.SetAttributes(attribute.Int("products", len(products)))
	c.logger.Info("catalog loaded", zap.Int("products", len(products)), zap.Bool("seeded", !found))
	return nil
}

// Loaded reports whether Load has completed at least once.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func cloneAll(ps []*domain.Product) []*domain.Product {
	out := make([]*domain.Product, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Clone())
	}
	return out
}

// All returns every product regardless of status.
func (c *Catalog) All() []*domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.products)
}

// List returns active products, newest first, narrowed to one rarity unless
// filter is empty or "all".
func (c *Catalog) List(filter string) []*domain.Product {
	filter = strings.ToLower(strings.TrimSpace(filter))
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []*domain.Product{}
	for _, p := range c.products {
		if !p.IsActive() {
			continue
		}
		if filter != "" && filter != domain.RarityAll && string(p.Rarity) != filter {
			continue
		}
		out = append(out, p.Clone())
	}
	return out
}

// Search matches active products by title, description, city and rarity label.
func (c *Catalog) Search(query string) SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return SearchResult{Cleared: true}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := SearchResult{Query: strings.TrimSpace(query), Products: []*domain.Product{}}
	for _, p := range c.products {
		if p.IsActive() && p.MatchesQuery(q) {
			res.Products = append(res.Products, p.Clone())
		}
	}
	return res
}

// Get returns a copy of the product, or nil when unknown.
func (c *Catalog) Get(id int64) *domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.products[i].Clone()
	}
	return nil
}

// ByOwner returns every product, any status, whose seller snapshot is userID.
func (c *Catalog) ByOwner(userID string) []*domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []*domain.Product{}
	for _, p := range c.products {
		if p.Seller.ID == userID {
			out = append(out, p.Clone())
		}
	}
	return out
}

func (c *Catalog) OwnerStats(userID string) domain.OwnerStats {
	var st domain.OwnerStats
	for _, p := range c.ByOwner(userID) {
		st.Total++
		if p.IsActive() {
			st.Active++
		} else {
			st.Sold++
		}
	}
	return st
}

// CheckOwner reports whether userID may edit or delete the product.
func (c *Catalog) CheckOwner(id int64, userID string) error {
	p := c.Get(id)
	if p == nil {
		return domain.ErrProductNotFound
	}
	if userID == "" || p.Seller.ID != userID {
		return domain.ErrForbidden
	}
	return nil
}

// ContactLink returns the Telegram chat link of the seller.
func (c *Catalog) ContactLink(id int64) (string, error) {
	p := c.Get(id)
	if p == nil {
		return "", domain.ErrProductNotFound
	}
	handle := strings.TrimPrefix(strings.TrimSpace(p.Seller.Telegram), "@")
	if handle == "" {
		return "", domain.ErrNoContact
	}
	return "https://t.me/" + handle, nil
}

// ShareLink builds the deep link that opens a product.
func ShareLink(base string, id int64) string {
	return base + "#product=" + strconv.FormatInt(id, 10)
}

func (c *Catalog) indexOf(id int64) int {
	for i, p := range c.products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func parsePrice(s string) (int64, error) {
	price, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || price <= 0 {
		return 0, domain.NewValidationError(domain.FieldPrice, domain.MsgInvalidPrice)
	}
	return price, nil
}

// validateDraft checks fields in form order; the first failure wins.
func validateDraft(d domain.Draft, photos int) (title string, price int64, city string, r domain.Rarity, cond domain.Condition, err error) {
	title = strings.TrimSpace(d.Title)
	if title == "" {
		return "", 0, "", "", "", domain.NewValidationError(domain.FieldTitle, domain.MsgTitleRequired)
	}
	if price, err = parsePrice(d.Price); err != nil {
		return "", 0, "", "", "", err
	}
	city = strings.TrimSpace(d.City)
	if city == "" {
		return "", 0, "", "", "", domain.NewValidationError(domain.FieldCity, domain.MsgCityRequired)
	}
	if r, err = domain.ParseRarity(d.Rarity); err != nil {
		return "", 0, "", "", "", err
	}
	if cond, err = domain.ParseCondition(d.Condition); err != nil {
		return "", 0, "", "", "", err
	}
	if photos < 1 {
		return "", 0, "", "", "", domain.NewValidationError(domain.FieldPhotos, domain.MsgPhotoRequired)
	}
	return title, price, city, r, cond, nil
}

// snapshotSeller copies the publishing user into the listing.
func snapshotSeller(u *domain.User, telegram string) domain.SellerSnapshot {
	s := domain.SellerSnapshot{ID: "anonymous", Name: "Аноним", Avatar: "?", Telegram: strings.TrimSpace(telegram)}
	if u == nil {
		return s
	}
	if u.ID != "" {
		s.ID = u.ID
	}
	if u.FirstName != "" {
		s.Name = u.FirstName
	}
	if u.Avatar != "" {
		s.Avatar = u.Avatar
	}
	if s.Telegram == "" {
		s.Telegram = u.Telegram
	}
	return s
}

// Publish validates the draft, stores the photos and prepends the listing.
func (c *Catalog) Publish(ctx context.Context, d domain.Draft, seller *domain.User, photos PhotoSource) (*domain.Product, error) {
	ctx, span := tracer.Start(ctx, "Catalog.Publish")
	defer span.End()

	title, price, city, rarity, cond, err := validateDraft(d, photos.Len())
	if err != nil {
		return nil, err
	}
	images, err := photos.Encode(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	description := strings.TrimSpace(d.Description)
	if description == "" {
		description = domain.DefaultDescription
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	id := now.UnixMilli()
	if id <= c.lastID {
		id = c.lastID + 1
	}
	p := &domain.Product{
		ID:          id,
		Title:       title,
		Price:       price,
		Description: description,
		Rarity:      rarity,
		Condition:   cond,
		City:        city,
		Seller:      snapshotSeller(seller, d.Telegram),
		Images:      images,
		Date:        now,
		Status:      domain.StatusActive,
		HasPhotos:   true,
		PhotoCount:  len(images),
	}

	if err := c.photos.SavePhotos(ctx, id, images); err != nil {
		span.RecordError(err)
		return nil, err
	}
	next := append([]*domain.Product{p}, c.products...)
	if err := c.repo.SaveProducts(ctx, next); err != nil {
		span.RecordError(err)
		if derr := c.photos.DeletePhotos(ctx, id); derr != nil {
			c.logger.Warn("failed to roll back photos", zap.Int64("product_id", id), zap.Error(derr))
		}
		return nil, err
	}
	c.products = next
	c.lastID = id

	span.SetAttributes(attribute.Int64("product_id", id))
	c.logger.Info("product published", zap.Int64("product_id", id), zap.String("seller_id", p.Seller.ID))
	if c.metrics != nil {
		c.metrics.ProductsPublishedTotal.Inc()
	}
	c.emit(ctx, domain.SubjectProductPublished, p)
	if c.notifier != nil {
		if err := c.notifier.NotifyPublished(ctx, p); err != nil {
			c.logger.Warn("moderation notification failed", zap.Int64("product_id", id), zap.Error(err))
		}
	}
	return p.Clone(), nil
}

// Update applies a patch. An unknown id is a silent no-op returning nil.
// Every value is validated before anything changes.
func (c *Catalog) Update(ctx context.Context, id int64, patch domain.Patch) (*domain.Product, error) {
	ctx, span := tracer.Start(ctx, "Catalog.Update")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return nil, nil
	}
	p := c.products[i].Clone()

	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		if t == "" {
			return nil, domain.NewValidationError(domain.FieldTitle, domain.MsgTitleRequired)
		}
		p.Title = t
	}
	if patch.Price != nil {
		price, err := parsePrice(*patch.Price)
		if err != nil {
			return nil, err
		}
		p.Price = price
	}
	if patch.City != nil {
		city := strings.TrimSpace(*patch.City)
		if city == "" {
			return nil, domain.NewValidationError(domain.FieldCity, domain.MsgCityRequired)
		}
		p.City = city
	}
	if patch.Status != nil {
		st, err := domain.ParseStatus(*patch.Status)
		if err != nil {
			return nil, err
		}
		p.Status = st
	}
	if patch.Description != nil {
		p.Description = strings.TrimSpace(*patch.Description)
		if p.Description == "" {
			p.Description = domain.DefaultDescription
		}
	}

	next := append([]*domain.Product(nil), c.products...)
	next[i] = p
	if err := c.repo.SaveProducts(ctx, next); err != nil {
		span.RecordError(err)
		return nil, err
	}
	c.products = next

	c.logger.Info("product updated", zap.Int64("product_id", id))
	if c.metrics != nil {
		c.metrics.ProductsUpdatedTotal.Inc()
	}
	c.emit(ctx, domain.SubjectProductUpdated, p)
	return p.Clone(), nil
}

// Remove deletes a product, its photos, and its id from every favorites set.
// Removing an unknown id returns false and touches nothing.
func (c *Catalog) Remove(ctx context.Context, id int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "Catalog.Remove")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return false, nil
	}
	removed := c.products[i]
	next := append(append([]*domain.Product(nil), c.products[:i]...), c.products[i+1:]...)
	if err := c.repo.SaveProducts(ctx, next); err != nil {
		span.RecordError(err)
		return false, err
	}
	c.products = next

	if removed.HasPhotos {
		if err := c.photos.DeletePhotos(ctx, id); err != nil {
			c.logger.Warn("failed to purge photos", zap.Int64("product_id", id), zap.Error(err))
		}
	}
	if c.favorites != nil {
		if err := c.favorites.PurgeProduct(ctx, id); err != nil {
			c.logger.Warn("failed to purge favorites", zap.Int64("product_id", id), zap.Error(err))
		}
	}

	c.logger.Info("product removed", zap.Int64("product_id", id))
	if c.metrics != nil {
		c.metrics.ProductsDeletedTotal.Inc()
	}
	c.emit(ctx, domain.SubjectProductDeleted, removed)
	return true, nil
}

func (c *Catalog) emit(ctx context.Context, subject string, p *domain.Product) {
	if c.events == nil {
		return
	}
	ev := domain.ProductEvent{
		ProductID:  p.ID,
		SellerID:   p.Seller.ID,
		Title:      p.Title,
		Price:      p.Price,
		Rarity:     p.Rarity,
		Status:     string(p.Status),
		OccurredAt: c.now().UTC(),
	}
	if err := c.events.PublishProductEvent(ctx, subject, ev); err != nil {
		c.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Int64("product_id", p.ID), zap.Error(err))
	}
}
