package controller

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/repository/localstore"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/repository/memory"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/usecase"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/view"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
)

const botToken = "123456:TEST"

type fixture struct {
	app   *App
	store *localstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithVerifier(t, usecase.NewInitDataVerifier(botToken, time.Hour))
}

func newFixtureWithVerifier(t *testing.T, verifier *usecase.InitDataVerifier) *fixture {
	t.Helper()
	store := localstore.New(memory.NewKVStore())
	log := logger.NewNop()
	favs := usecase.NewFavorites(store, log)
	app := NewApp(Deps{
		Session:   usecase.NewSession(store, "", log),
		Catalog:   usecase.NewCatalog(store, store, log, usecase.WithFavoritesPurger(favs)),
		Favorites: favs,
		Renderer:  view.MustNewRenderer(),
		Verifier:  verifier,
		Logger:    log,
		BaseURL:   "https://t.me/hw_elite_bot/app",
	})
	res := app.Dispatch(context.Background(), Event{Binding: Binding{"app", "start"}})
	require.Nil(t, res.Notice)
	return &fixture{app: app, store: store}
}

func (f *fixture) do(ev Event) Result {
	return f.app.Dispatch(context.Background(), ev)
}

func ev(component, action string) Event {
	return Event{Binding: Binding{component, action}}
}

func requireError(t *testing.T, res Result, msg string) {
	t.Helper()
	require.NotNil(t, res.Notice)
	assert.Equal(t, LevelError, res.Notice.Level)
	assert.Equal(t, msg, res.Notice.Message)
}

func requireSuccess(t *testing.T, res Result, msg string) {
	t.Helper()
	require.NotNil(t, res.Notice)
	assert.Equal(t, LevelSuccess, res.Notice.Level)
	assert.Equal(t, msg, res.Notice.Message)
}

func pngFile() usecase.PhotoFile {
	return usecase.PhotoFile{Name: "car.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
}

func (f *fixture) signInDemo(t *testing.T) {
	t.Helper()
	res := f.do(ev("session", "demo"))
	require.Nil(t, res.Notice)
	require.NotNil(t, f.app.State().User)
}

func (f *fixture) publish(t *testing.T, title string) *domain.Product {
	t.Helper()
	add := ev("intake", "add")
	add.Files = []usecase.PhotoFile{pngFile()}
	require.Nil(t, f.do(add).Notice)

	pub := ev("catalog", "publish")
	pub.Draft = domain.Draft{Title: title, Price: "100", City: "Tver", Rarity: "main", Condition: "new"}
	requireSuccess(t, f.do(pub), "Товар успешно опубликован!")

	mine := f.app.deps.Catalog.ByOwner(domain.DemoUserID)
	require.NotEmpty(t, mine)
	return mine[0]
}

func TestApp_StartRendersSeededHome(t *testing.T) {
	f := newFixture(t)
	st := f.app.State()
	assert.Equal(t, PageHome, st.Page)
	assert.Nil(t, st.User)

	res := f.do(ev("nav", "show"))
	assert.Equal(t, 3, strings.Count(res.Fragment, `class="product-card"`))
}

func TestApp_UnknownActionBecomesNotice(t *testing.T) {
	f := newFixture(t)
	res := f.do(ev("catalog", "explode"))
	requireError(t, res, "Неизвестное действие")
	assert.Equal(t, PageHome, res.Page)
	assert.NotEmpty(t, res.Fragment)
}

func TestApp_PanicBecomesNotice(t *testing.T) {
	f := newFixture(t)
	f.app.Bindings[Binding{"test", "panic"}] = func(context.Context, Event) (Result, error) {
		panic("boom")
	}
	res := f.do(ev("test", "panic"))
	require.NotNil(t, res.Notice)
	assert.Equal(t, LevelError, res.Notice.Level)
}

func TestApp_FilterAndSearch(t *testing.T) {
	f := newFixture(t)

	filter := ev("catalog", "filter")
	filter.Value = "th"
	res := f.do(filter)
	assert.Equal(t, "th", f.app.State().Filter)
	assert.Equal(t, 1, strings.Count(res.Fragment, `class="product-card"`))
	assert.Contains(t, res.Fragment, "Porsche 911 Turbo Treasure Hunt")
	assert.Contains(t, res.Fragment, "Казань")

	filter.Value = "limited"
	res = f.do(filter)
	assert.Contains(t, res.Fragment, "В этой категории пока нет объявлений")

	search := ev("catalog", "search")
	search.Value = "ferrari"
	res = f.do(search)
	assert.Equal(t, PageSearch, res.Page)
	assert.Equal(t, 1, strings.Count(res.Fragment, `class="product-card"`))
	assert.Contains(t, res.Fragment, "Ferrari F40")

	search.Value = ""
	res = f.do(search)
	assert.NotContains(t, res.Fragment, "product-card")
	assert.NotContains(t, res.Fragment, "Ничего не найдено")
}

func TestApp_PublishRequiresSignIn(t *testing.T) {
	f := newFixture(t)
	pub := ev("catalog", "publish")
	pub.Draft = domain.Draft{Title: "Test Car", Price: "100", City: "Tver", Rarity: "main", Condition: "new"}
	requireError(t, f.do(pub), domain.MsgSignInRequired)
}

func TestApp_PublishValidationKeepsBuffer(t *testing.T) {
	f := newFixture(t)
	f.signInDemo(t)

	add := ev("intake", "add")
	add.Files = []usecase.PhotoFile{pngFile()}
	f.do(add)

	pub := ev("catalog", "publish")
	pub.Draft = domain.Draft{Title: "", Price: "100", City: "Tver", Rarity: "main", Condition: "new"}
	requireError(t, f.do(pub), domain.MsgTitleRequired)
	assert.Equal(t, 1, f.app.Intake().Len())
	assert.Len(t, f.app.deps.Catalog.All(), 3)
}

func TestApp_PublishEditDelete(t *testing.T) {
	f := newFixture(t)
	f.signInDemo(t)
	p := f.publish(t, "Test Car")

	assert.Equal(t, 0, f.app.Intake().Len())
	home := f.do(ev("nav", "show"))
	assert.Contains(t, home.Fragment, "Test Car")

	edit := ev("catalog", "edit")
	edit.ProductID = p.ID
	price := "250"
	edit.Patch = domain.Patch{Price: &price}
	res := f.do(edit)
	requireSuccess(t, res, "Изменения сохранены!")
	assert.Equal(t, PageMy, res.Page)
	assert.Equal(t, int64(250), f.app.deps.Catalog.Get(p.ID).Price)

	del := ev("catalog", "delete")
	del.ProductID = p.ID
	requireError(t, f.do(del), domain.MsgConfirmRequired)
	require.NotNil(t, f.app.deps.Catalog.Get(p.ID))

	del.Confirmed = true
	res = f.do(del)
	requireSuccess(t, res, "Объявление удалено")
	assert.Nil(t, f.app.deps.Catalog.Get(p.ID))
	assert.Contains(t, res.Fragment, "У вас нет активных объявлений")
}

func TestApp_EditForeignListingForbidden(t *testing.T) {
	f := newFixture(t)
	f.signInDemo(t)

	edit := ev("catalog", "edit")
	edit.ProductID = 1
	title := "Hijacked"
	edit.Patch = domain.Patch{Title: &title}
	requireError(t, f.do(edit), domain.MsgForbidden)
	assert.Equal(t, "Hot Wheels Ferrari F40 - Красная", f.app.deps.Catalog.Get(1).Title)

	del := ev("catalog", "delete")
	del.ProductID = 1
	del.Confirmed = true
	requireError(t, f.do(del), domain.MsgForbidden)
}

func TestApp_ToggleFavorite(t *testing.T) {
	f := newFixture(t)

	toggle := ev("favorites", "toggle")
	toggle.ProductID = 2
	res := f.do(toggle)
	requireSuccess(t, res, "Добавлено в избранное!")
	assert.Contains(t, res.Fragment, "❤️ В избранном")

	show := ev("nav", "show")
	show.Value = "favorites"
	res = f.do(show)
	assert.Equal(t, 1, strings.Count(res.Fragment, `class="product-card"`))
	assert.Contains(t, res.Fragment, "Lamborghini Countach STH 2023")

	res = f.do(toggle)
	requireSuccess(t, res, "Удалено из избранного")
	assert.Contains(t, res.Fragment, "Нет избранного")

	ids, err := f.store.LoadFavorites(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestApp_DeleteCascadesToFavorites(t *testing.T) {
	f := newFixture(t)
	f.signInDemo(t)
	p := f.publish(t, "Test Car")

	toggle := ev("favorites", "toggle")
	toggle.ProductID = p.ID
	f.do(toggle)

	del := ev("catalog", "delete")
	del.ProductID = p.ID
	del.Confirmed = true
	f.do(del)

	ids, err := f.store.LoadFavorites(context.Background(), "")
	require.NoError(t, err)
	assert.NotContains(t, ids, p.ID)
}

func TestApp_ContactAndShare(t *testing.T) {
	f := newFixture(t)

	contact := ev("catalog", "contact")
	contact.ProductID = 1
	res := f.do(contact)
	requireSuccess(t, res, "Открывается чат с Иван П.")
	assert.Equal(t, "https://t.me/ivan_hotwheels", res.Link)

	share := ev("catalog", "share")
	share.ProductID = 3
	res = f.do(share)
	requireSuccess(t, res, "Ссылка скопирована в буфер обмена!")
	assert.Equal(t, "https://t.me/hw_elite_bot/app#product=3", res.Link)

	share.ProductID = 404
	requireError(t, f.do(share), domain.MsgProductNotFound)
}

func TestApp_OpenProduct(t *testing.T) {
	f := newFixture(t)

	open := ev("catalog", "open")
	open.ProductID = 2
	res := f.do(open)
	assert.Equal(t, PageProduct, res.Page)
	assert.Contains(t, res.Fragment, "Lamborghini Countach STH 2023")
	assert.Contains(t, res.Fragment, "@alexey_collector")

	open.ProductID = 999
	res = f.do(open)
	requireError(t, res, domain.MsgProductNotFound)
	assert.Equal(t, int64(2), f.app.State().OpenProduct)
}

func TestApp_UploadRejection(t *testing.T) {
	f := newFixture(t)

	add := ev("intake", "add")
	add.Files = []usecase.PhotoFile{
		{Name: "anim.gif", ContentType: "image/gif", Data: []byte("GIF89a")},
		pngFile(),
		{Name: "huge.png", ContentType: "image/png", Data: make([]byte, usecase.MaxPhotoSize+1)},
	}
	res := f.do(add)
	assert.Equal(t, PageSell, res.Page)
	require.Len(t, res.Notices, 2)
	assert.Equal(t, Notice{Level: LevelWarning, Message: domain.MsgUnsupportedType}, res.Notices[0])
	assert.Equal(t, Notice{Level: LevelWarning, Message: domain.MsgFileTooLarge}, res.Notices[1])
	require.NotNil(t, res.Notice)
	assert.Equal(t, res.Notices[0], *res.Notice)
	assert.Equal(t, 1, f.app.Intake().Len())
	assert.Equal(t, 1, strings.Count(res.Fragment, `class="photo-item"`))

	rm := ev("intake", "remove")
	rm.Index = 0
	res = f.do(rm)
	assert.Equal(t, 0, f.app.Intake().Len())
	assert.Contains(t, res.Fragment, "0/3")
}

func TestApp_LeavingSellFormClearsPhotos(t *testing.T) {
	f := newFixture(t)
	f.signInDemo(t)

	add := ev("intake", "add")
	add.Files = []usecase.PhotoFile{pngFile()}
	f.do(add)
	require.Equal(t, 1, f.app.Intake().Len())

	show := ev("nav", "show")
	show.Value = "favorites"
	f.do(show)
	assert.Equal(t, 0, f.app.Intake().Len())

	pub := ev("catalog", "publish")
	pub.Draft = domain.Draft{Title: "Test Car", Price: "100", City: "Tver"}
	requireError(t, f.do(pub), domain.MsgPhotoRequired)
}

func TestApp_PublishPrefillsFromProfile(t *testing.T) {
	f := newFixture(t)
	f.signInDemo(t)

	show := ev("nav", "show")
	show.Value = "sell"
	res := f.do(show)
	assert.Contains(t, res.Fragment, `value="Москва"`)
	assert.Contains(t, res.Fragment, `value="@demo_user"`)

	add := ev("intake", "add")
	add.Files = []usecase.PhotoFile{pngFile()}
	f.do(add)
	pub := ev("catalog", "publish")
	pub.Draft = domain.Draft{Title: "Test Car", Price: "100"}
	requireSuccess(t, f.do(pub), "Товар успешно опубликован!")

	p := f.app.deps.Catalog.ByOwner(domain.DemoUserID)[0]
	assert.Equal(t, "Москва", p.City)
	assert.Equal(t, domain.RarityMain, p.Rarity)
	assert.Equal(t, domain.ConditionNew, p.Condition)
}

func TestApp_StaleIDIsSilent(t *testing.T) {
	f := newFixture(t)
	f.signInDemo(t)
	p := f.publish(t, "Test Car")

	del := ev("catalog", "delete")
	del.ProductID = p.ID
	del.Confirmed = true
	requireSuccess(t, f.do(del), "Объявление удалено")

	res := f.do(del)
	assert.Nil(t, res.Notice)
	assert.Equal(t, PageMy, res.Page)
	assert.Contains(t, res.Fragment, "У вас нет активных объявлений")

	edit := ev("catalog", "edit")
	edit.ProductID = p.ID
	price := "250"
	edit.Patch = domain.Patch{Price: &price}
	res = f.do(edit)
	assert.Nil(t, res.Notice)
	assert.Nil(t, f.app.deps.Catalog.Get(p.ID))
}

func TestApp_LogoutNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	f.signInDemo(t)

	requireError(t, f.do(ev("session", "logout")), domain.MsgConfirmRequired)
	assert.NotNil(t, f.app.State().User)

	logout := ev("session", "logout")
	logout.Confirmed = true
	res := f.do(logout)
	assert.Nil(t, res.Notice)
	assert.Nil(t, f.app.State().User)

	u, err := f.store.LoadUser(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestApp_ProfileUpdate(t *testing.T) {
	f := newFixture(t)

	show := ev("nav", "show")
	show.Value = "profile"
	requireError(t, f.do(show), domain.MsgSignInRequired)

	f.signInDemo(t)
	upd := ev("session", "profile")
	upd.Profile = ProfileForm{Name: "Алиса", Telegram: "@alice", City: "Пермь"}
	res := f.do(upd)
	requireSuccess(t, res, "Профиль обновлен")
	assert.Contains(t, res.Fragment, "Алиса")
	assert.Equal(t, "А", f.app.State().User.Avatar)
}

func TestApp_SignInTelegram(t *testing.T) {
	f := newFixture(t)

	v := usecase.NewInitDataVerifier(botToken, time.Hour)
	raw, err := v.Sign(url.Values{"user": {`{"id":777,"first_name":"Олег","username":"oleg"}`}}, time.Now())
	require.NoError(t, err)
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)

	login := ev("session", "telegram")
	login.InitData = values.Encode()
	res := f.do(login)
	assert.Nil(t, res.Notice)
	require.NotNil(t, f.app.State().User)
	assert.Equal(t, "777", f.app.State().User.ID)

	values.Set("hash", strings.Repeat("0", 64))
	login.InitData = values.Encode()
	requireError(t, f.do(login), domain.MsgInvalidInitData)
}

func TestApp_SignInTelegramWithoutBotToken(t *testing.T) {
	f := newFixtureWithVerifier(t, usecase.NewInitDataVerifier("", 0))

	qs := url.Values{"user": {`{"id":42,"first_name":"Victim","username":"victim"}`}}
	authDate := time.Now()
	hash, err := initdata.SignQueryString(qs.Encode(), "", authDate)
	require.NoError(t, err)
	qs.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	qs.Set("hash", hash)

	login := ev("session", "telegram")
	login.InitData = qs.Encode()
	requireError(t, f.do(login), domain.MsgInvalidInitData)
	assert.Nil(t, f.app.State().User)
}

type countingRepo struct {
	domain.ProductRepository
	loads int
}

func (r *countingRepo) LoadProducts(ctx context.Context) ([]*domain.Product, bool, error) {
	r.loads++
	return r.ProductRepository.LoadProducts(ctx)
}

func TestApp_StartReusesLoadedCatalog(t *testing.T) {
	ctx := context.Background()
	store := localstore.New(memory.NewKVStore())
	log := logger.NewNop()
	repo := &countingRepo{ProductRepository: store}
	catalog := usecase.NewCatalog(repo, store, log)
	require.NoError(t, catalog.Load(ctx))

	app := NewApp(Deps{
		Session:   usecase.NewSession(store, "", log),
		Catalog:   catalog,
		Favorites: usecase.NewFavorites(store, log),
		Renderer:  view.MustNewRenderer(),
		Logger:    log,
	})
	res := app.Dispatch(ctx, ev("app", "start"))
	require.Nil(t, res.Notice)
	assert.Equal(t, 1, repo.loads)
	assert.Equal(t, 3, strings.Count(res.Fragment, `class="product-card"`))
}
