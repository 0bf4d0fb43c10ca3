package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/repository/localstore"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/repository/memory"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishProductEvent(ctx context.Context, subject string, event domain.ProductEvent) error {
	args := m.Called(ctx, subject, event)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishFavoriteEvent(ctx context.Context, event domain.FavoriteEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

var testNow = time.Date(2025, time.March, 8, 12, 0, 0, 0, time.UTC)

type fixture struct {
	kv        *memory.KVStore
	store     *localstore.Store
	favorites *Favorites
	catalog   *Catalog
}

func newFixture(t *testing.T, opts ...CatalogOption) *fixture {
	t.Helper()
	kv := memory.NewKVStore()
	store := localstore.New(kv)
	log := logger.NewNop()
	favs := NewFavorites(store, log)
	opts = append([]CatalogOption{WithFavoritesPurger(favs), WithClock(func() time.Time { return testNow })}, opts...)
	c := NewCatalog(store, store, log, opts...)
	require.NoError(t, c.Load(context.Background()))
	return &fixture{kv: kv, store: store, favorites: favs, catalog: c}
}

func onePhoto(t *testing.T) *PhotoIntake {
	t.Helper()
	in := NewPhotoIntake()
	_, err := in.Add(PhotoFile{Name: "car.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}})
	require.NoError(t, err)
	return in
}

func testCarDraft() domain.Draft {
	return domain.Draft{Title: "Test Car", Price: "100", City: "Tver", Rarity: "main", Condition: "new"}
}

func testSeller() *domain.User {
	return &domain.User{ID: "555", FirstName: "Пётр", Avatar: "П", Telegram: "@petr"}
}

func titles(ps []*domain.Product) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Title)
	}
	return out
}

func TestCatalog_LoadSeedsDemoAndPersists(t *testing.T) {
	f := newFixture(t)

	assert.Len(t, f.catalog.All(), 3)

	persisted, found, err := f.store.LoadProducts(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, persisted, 3)
}

func TestCatalog_LoadReseedsCorruptCollection(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	require.NoError(t, kv.Set(ctx, localstore.KeyProducts, []byte("not json")))
	store := localstore.New(kv)

	c := NewCatalog(store, store, logger.NewNop())
	assert.False(t, c.Loaded())
	require.NoError(t, c.Load(ctx))
	assert.True(t, c.Loaded())

	assert.Equal(t, domain.DemoProducts(), c.All())
}

func TestCatalog_LoadKeepsEmptyCollection(t *testing.T) {
	ctx := context.Background()
	store := localstore.New(memory.NewKVStore())
	require.NoError(t, store.SaveProducts(ctx, []*domain.Product{}))

	c := NewCatalog(store, store, logger.NewNop())
	require.NoError(t, c.Load(ctx))

	assert.Empty(t, c.All())
}

func TestCatalog_ListFilterTH(t *testing.T) {
	f := newFixture(t)

	got := f.catalog.List("th")
	require.Len(t, got, 1)
	assert.Equal(t, "Porsche 911 Turbo Treasure Hunt", got[0].Title)
	assert.Equal(t, int64(4200), got[0].Price)
	assert.Equal(t, "Казань", got[0].City)
}

func TestCatalog_ListFilterMembership(t *testing.T) {
	f := newFixture(t)
	filters := append([]string{"all", ""}, func() []string {
		var out []string
		for _, r := range domain.Rarities() {
			out = append(out, string(r))
		}
		return out
	}()...)

	for _, filter := range filters {
		listed := map[int64]bool{}
		for _, p := range f.catalog.List(filter) {
			listed[p.ID] = true
		}
		for _, p := range f.catalog.All() {
			want := p.IsActive() && (filter == "all" || filter == "" || string(p.Rarity) == filter)
			assert.Equal(t, want, listed[p.ID], "filter=%q product=%d", filter, p.ID)
		}
	}
}

func TestCatalog_ListHidesSold(t *testing.T) {
	f := newFixture(t)
	sold := "sold"

	_, err := f.catalog.Update(context.Background(), 1, domain.Patch{Status: &sold})
	require.NoError(t, err)

	assert.NotContains(t, titles(f.catalog.List("all")), "Hot Wheels Ferrari F40 - Красная")
	assert.Len(t, f.catalog.ByOwner("seller1"), 1, "owner still sees sold listings")
}

func TestCatalog_Search(t *testing.T) {
	f := newFixture(t)

	res := f.catalog.Search("ferrari")
	assert.False(t, res.Cleared)
	assert.Equal(t, []string{"Hot Wheels Ferrari F40 - Красная"}, titles(res.Products))

	res = f.catalog.Search("  КАЗАНЬ ")
	assert.Equal(t, []string{"Porsche 911 Turbo Treasure Hunt"}, titles(res.Products))

	res = f.catalog.Search("sth")
	assert.Equal(t, []string{"Lamborghini Countach STH 2023"}, titles(res.Products))

	res = f.catalog.Search("   ")
	assert.True(t, res.Cleared)
	assert.Empty(t, res.Products)

	res = f.catalog.Search("bugatti")
	assert.False(t, res.Cleared)
	assert.Empty(t, res.Products)
}

func TestCatalog_PublishValidation(t *testing.T) {
	tests := []struct {
		name   string
		draft  func(d *domain.Draft)
		photos bool
		field  string
	}{
		{name: "empty title", draft: func(d *domain.Draft) { d.Title = "  " }, photos: true, field: domain.FieldTitle},
		{name: "zero price", draft: func(d *domain.Draft) { d.Price = "0" }, photos: true, field: domain.FieldPrice},
		{name: "non-numeric price", draft: func(d *domain.Draft) { d.Price = "12abc" }, photos: true, field: domain.FieldPrice},
		{name: "negative price", draft: func(d *domain.Draft) { d.Price = "-5" }, photos: true, field: domain.FieldPrice},
		{name: "empty city", draft: func(d *domain.Draft) { d.City = "" }, photos: true, field: domain.FieldCity},
		{name: "unknown rarity", draft: func(d *domain.Draft) { d.Rarity = "gold" }, photos: true, field: domain.FieldRarity},
		{name: "unknown condition", draft: func(d *domain.Draft) { d.Condition = "mint" }, photos: true, field: domain.FieldCondition},
		{name: "no photos", draft: func(d *domain.Draft) {}, photos: false, field: domain.FieldPhotos},
		{name: "title wins over price", draft: func(d *domain.Draft) { d.Title = ""; d.Price = "0" }, photos: false, field: domain.FieldTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			d := testCarDraft()
			tt.draft(&d)
			in := NewPhotoIntake()
			if tt.photos {
				in = onePhoto(t)
			}

			p, err := f.catalog.Publish(context.Background(), d, testSeller(), in)

			require.Nil(t, p)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.Len(t, f.catalog.All(), 3)
		})
	}
}

func TestCatalog_PublishPrependsAndOwns(t *testing.T) {
	events := &MockEventPublisher{}
	events.On("PublishProductEvent", mock.Anything, domain.SubjectProductPublished, mock.MatchedBy(func(e domain.ProductEvent) bool {
		return e.Title == "Test Car" && e.SellerID == "555"
	})).Return(nil).Once()
	f := newFixture(t, WithEventPublisher(events))

	p, err := f.catalog.Publish(context.Background(), testCarDraft(), testSeller(), onePhoto(t))
	require.NoError(t, err)

	assert.Equal(t, testNow.UnixMilli(), p.ID)
	assert.Equal(t, domain.DefaultDescription, p.Description)
	assert.Equal(t, domain.SellerSnapshot{ID: "555", Name: "Пётр", Avatar: "П", Telegram: "@petr"}, p.Seller)
	assert.True(t, p.HasPhotos)
	assert.Equal(t, 1, p.PhotoCount)
	require.Len(t, p.Images, 1)
	assert.Contains(t, p.Images[0], "data:image/png;base64,")

	assert.Equal(t, "Test Car", f.catalog.List("all")[0].Title)
	assert.Equal(t, []string{"Test Car"}, titles(f.catalog.ByOwner("555")))
	events.AssertExpectations(t)
}

func TestCatalog_PublishAnonymousAndFormContact(t *testing.T) {
	f := newFixture(t)
	d := testCarDraft()
	d.Telegram = "@form_handle"

	p, err := f.catalog.Publish(context.Background(), d, nil, onePhoto(t))
	require.NoError(t, err)
	assert.Equal(t, domain.SellerSnapshot{ID: "anonymous", Name: "Аноним", Avatar: "?", Telegram: "@form_handle"}, p.Seller)
}

func TestCatalog_PublishIDsStayIncreasing(t *testing.T) {
	f := newFixture(t)

	first, err := f.catalog.Publish(context.Background(), testCarDraft(), testSeller(), onePhoto(t))
	require.NoError(t, err)
	second, err := f.catalog.Publish(context.Background(), testCarDraft(), testSeller(), onePhoto(t))
	require.NoError(t, err)

	assert.Equal(t, first.ID+1, second.ID)
}

func TestCatalog_SaveThenLoadRoundTrip(t *testing.T) {
	f := newFixture(t)
	_, err := f.catalog.Publish(context.Background(), testCarDraft(), testSeller(), onePhoto(t))
	require.NoError(t, err)

	reloaded := NewCatalog(f.store, f.store, logger.NewNop())
	require.NoError(t, reloaded.Load(context.Background()))

	assert.Equal(t, f.catalog.All(), reloaded.All())
}

func TestCatalog_UpdateUnknownIsNoop(t *testing.T) {
	f := newFixture(t)
	title := "Other"

	p, err := f.catalog.Update(context.Background(), 999, domain.Patch{Title: &title})
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestCatalog_UpdateRejectsBeforeMutation(t *testing.T) {
	f := newFixture(t)
	title, status := "Renamed", "lost"

	_, err := f.catalog.Update(context.Background(), 2, domain.Patch{Title: &title, Status: &status})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, domain.FieldStatus, ve.Field)
	assert.Equal(t, "Lamborghini Countach STH 2023", f.catalog.Get(2).Title)
}

func TestCatalog_UpdatePersists(t *testing.T) {
	f := newFixture(t)
	price, desc := " 9100 ", ""

	p, err := f.catalog.Update(context.Background(), 2, domain.Patch{Price: &price, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, int64(9100), p.Price)
	assert.Equal(t, domain.DefaultDescription, p.Description)

	persisted, _, err := f.store.LoadProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9100), persisted[1].Price)
}

func TestCatalog_RemoveCascadesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.catalog.Publish(ctx, testCarDraft(), testSeller(), onePhoto(t))
	require.NoError(t, err)
	_, err = f.favorites.Toggle(ctx, "", p.ID)
	require.NoError(t, err)
	_, err = f.favorites.Toggle(ctx, "777", p.ID)
	require.NoError(t, err)
	_, err = f.favorites.Toggle(ctx, "777", 1)
	require.NoError(t, err)

	removed, err := f.catalog.Remove(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	assert.Nil(t, f.catalog.Get(p.ID))
	assert.False(t, f.favorites.For(ctx, "").Has(p.ID))
	assert.Equal(t, []int64{1}, f.favorites.For(ctx, "777").IDs())
	photos, err := f.store.LoadPhotos(ctx, p.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, photos)

	persisted, err := f.store.LoadFavorites(ctx, "777")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, persisted)

	removed, err = f.catalog.Remove(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, []int64{1}, f.favorites.For(ctx, "777").IDs())
	assert.Len(t, f.catalog.All(), 3)
}

func TestCatalog_OwnershipAndContact(t *testing.T) {
	f := newFixture(t)

	assert.NoError(t, f.catalog.CheckOwner(1, "seller1"))
	assert.ErrorIs(t, f.catalog.CheckOwner(1, "seller2"), domain.ErrForbidden)
	assert.ErrorIs(t, f.catalog.CheckOwner(404, "seller1"), domain.ErrProductNotFound)

	link, err := f.catalog.ContactLink(3)
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/maria_cars", link)

	_, err = f.catalog.ContactLink(404)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	assert.Equal(t, "https://app.example.com/#product=3", ShareLink("https://app.example.com/", 3))
}

func TestCatalog_ContactMissingHandle(t *testing.T) {
	f := newFixture(t)
	p, err := f.catalog.Publish(context.Background(), testCarDraft(), &domain.User{ID: "1", FirstName: "A"}, onePhoto(t))
	require.NoError(t, err)

	_, err = f.catalog.ContactLink(p.ID)
	assert.ErrorIs(t, err, domain.ErrNoContact)
	assert.Equal(t, domain.MsgNoContact, domain.UserMessage(err))
}

func TestCatalog_OwnerStats(t *testing.T) {
	f := newFixture(t)
	sold := "sold"
	_, err := f.catalog.Update(context.Background(), 1, domain.Patch{Status: &sold})
	require.NoError(t, err)

	assert.Equal(t, domain.OwnerStats{Active: 0, Sold: 1, Total: 1}, f.catalog.OwnerStats("seller1"))
	assert.Equal(t, domain.OwnerStats{}, f.catalog.OwnerStats("nobody"))
}
