package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/repository/localstore"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/repository/memory"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/rest/middleware"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/usecase"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/view"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/metrics"
)

const botToken = "123456:TEST"

type testServer struct {
	handler http.Handler
	catalog *usecase.Catalog
	metrics *metrics.MetricsManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewNop()
	store := localstore.New(memory.NewKVStore())
	favs := usecase.NewFavorites(store, log)
	catalog := usecase.NewCatalog(store, store, log, usecase.WithFavoritesPurger(favs))
	require.NoError(t, catalog.Load(context.Background()))

	m := metrics.NewMetricsManager("test")
	tokens := middleware.NewTokenManager("secret", 720*time.Hour)
	h := NewHandler(Deps{
		Catalog:   catalog,
		Favorites: favs,
		Users:     store,
		Verifier:  usecase.NewInitDataVerifier(botToken, time.Hour),
		Tokens:    tokens,
		Renderer:  view.MustNewRenderer(),
		Metrics:   m,
		Logger:    log,
		BaseURL:   "https://t.me/hw_elite_bot/app",
	})
	return &testServer{handler: NewRouter(h, tokens, log, m), catalog: catalog, metrics: m}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, path, token string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (s *testServer) demoToken(t *testing.T) string {
	t.Helper()
	rr := s.do(t, jsonRequest(http.MethodPost, "/api/auth/demo", "", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[authResponse](t, rr)
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, domain.DemoUserID, resp.User.ID)
	return resp.Token
}

type part struct {
	name, filename, contentType string
	data                        []byte
}

func multipartRequest(t *testing.T, token string, fields map[string]string, files []part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.name+`"; filename="`+f.filename+`"`)
		h.Set("Content-Type", f.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/products", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func testCarFields() map[string]string {
	return map[string]string{
		"title": "Test Car", "price": "100", "city": "Tver",
		"rarity": "main", "condition": "new", "telegram": "@tester",
	}
}

func pngPart() part {
	return part{name: "photos", filename: "car.png", contentType: "image/png", data: []byte{0x89, 'P', 'N', 'G'}}
}

func (s *testServer) publish(t *testing.T, token string) domain.Product {
	t.Helper()
	rr := s.do(t, multipartRequest(t, token, testCarFields(), []part{pngPart()}))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[domain.Product](t, rr)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])
}

func TestListProducts(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, httptest.NewRequest(http.MethodGet, "/api/products?limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "3", rr.Header().Get("X-Total-Count"))
	assert.Len(t, decode[[]domain.Product](t, rr), 2)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/api/products?limit=2&page=2", nil))
	assert.Len(t, decode[[]domain.Product](t, rr), 1)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/api/products?page=9", nil))
	assert.Empty(t, decode[[]domain.Product](t, rr))

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/api/products?category=th", nil))
	products := decode[[]domain.Product](t, rr)
	require.Len(t, products, 1)
	assert.Equal(t, int64(4200), products[0].Price)
	assert.Equal(t, "Казань", products[0].City)
}

func TestSearchAndGet(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, httptest.NewRequest(http.MethodGet, "/api/products/search?q=ferrari", nil))
	products := decode[[]domain.Product](t, rr)
	require.Len(t, products, 1)
	assert.Equal(t, int64(1), products[0].ID)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/api/products/search?q=", nil))
	assert.Empty(t, decode[[]domain.Product](t, rr))

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/api/products/2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Lamborghini Countach STH 2023", decode[domain.Product](t, rr).Title)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/api/products/999", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/api/products/abc", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestContactSeller(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, httptest.NewRequest(http.MethodGet, "/api/products/3/contact", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://t.me/maria_cars", decode[map[string]string](t, rr)["url"])
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	for _, req := range []*http.Request{
		jsonRequest(http.MethodGet, "/api/me", "", nil),
		jsonRequest(http.MethodGet, "/api/favorites", "", nil),
		jsonRequest(http.MethodPost, "/api/favorites/1", "", nil),
		jsonRequest(http.MethodDelete, "/api/products/1", "", nil),
		jsonRequest(http.MethodGet, "/api/me", "forged", nil),
	} {
		assert.Equal(t, http.StatusUnauthorized, s.do(t, req).Code, req.URL.Path)
	}
}

func TestAuthTelegram(t *testing.T) {
	s := newTestServer(t)

	v := usecase.NewInitDataVerifier(botToken, time.Hour)
	raw, err := v.Sign(url.Values{"user": {`{"id":777,"first_name":"Олег","username":"oleg"}`}}, time.Now())
	require.NoError(t, err)
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)

	rr := s.do(t, jsonRequest(http.MethodPost, "/api/auth/telegram", "", authRequest{InitData: values.Encode()}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[authResponse](t, rr)
	assert.Equal(t, "777", resp.User.ID)
	assert.Equal(t, "@oleg", resp.User.Telegram)

	rr = s.do(t, jsonRequest(http.MethodGet, "/api/me", resp.Token, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Олег", decode[profileResponse](t, rr).User.FirstName)

	values.Set("hash", strings.Repeat("a", 64))
	rr = s.do(t, jsonRequest(http.MethodPost, "/api/auth/telegram", "", authRequest{InitData: values.Encode()}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUpdateMe(t *testing.T) {
	s := newTestServer(t)
	token := s.demoToken(t)

	rr := s.do(t, jsonRequest(http.MethodPut, "/api/me", token, profileRequest{Name: "Алиса", Telegram: "@alice", City: "Пермь"}))
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[profileResponse](t, rr)
	assert.Equal(t, "Алиса", resp.User.FirstName)
	assert.Equal(t, "А", resp.User.Avatar)
	assert.Equal(t, "Пермь", resp.User.City)
}

func TestPublish(t *testing.T) {
	s := newTestServer(t)
	token := s.demoToken(t)

	p := s.publish(t, token)
	assert.Equal(t, "Test Car", p.Title)
	assert.Equal(t, int64(100), p.Price)
	assert.Equal(t, domain.DemoUserID, p.Seller.ID)
	assert.Equal(t, "@tester", p.Seller.Telegram)
	require.Len(t, p.Images, 1)
	assert.True(t, strings.HasPrefix(p.Images[0], "data:image/png;base64,"))

	rr := s.do(t, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.Equal(t, "Test Car", decode[[]domain.Product](t, rr)[0].Title)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, "/api/users/"+domain.DemoUserID+"/products", nil))
	assert.Len(t, decode[[]domain.Product](t, rr), 1)
}

func TestPublish_Rejections(t *testing.T) {
	s := newTestServer(t)
	token := s.demoToken(t)

	rr := s.do(t, multipartRequest(t, token, testCarFields(), nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decode[errorResponse](t, rr)
	assert.Equal(t, domain.FieldPhotos, resp.Field)
	assert.Equal(t, domain.MsgPhotoRequired, resp.Error)

	fields := testCarFields()
	fields["price"] = "0"
	rr = s.do(t, multipartRequest(t, token, fields, []part{pngPart()}))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, domain.FieldPrice, decode[errorResponse](t, rr).Field)

	pdf := part{name: "photos", filename: "doc.pdf", contentType: "application/pdf", data: []byte("%PDF")}
	rr = s.do(t, multipartRequest(t, token, testCarFields(), []part{pdf}))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	resp = decode[errorResponse](t, rr)
	assert.Equal(t, domain.FieldPhotos, resp.Field)
	require.Len(t, resp.Rejected, 1)
	assert.Equal(t, rejectedPhoto{File: "doc.pdf", Reason: "type", Error: domain.MsgUnsupportedType}, resp.Rejected[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.UploadRejectionsTotal.WithLabelValues(string(domain.RejectType))))

	assert.Len(t, s.catalog.All(), 3)
}

func TestPublish_MixedBatchKeepsAcceptedPhotos(t *testing.T) {
	s := newTestServer(t)
	token := s.demoToken(t)

	gif := part{name: "photos", filename: "anim.gif", contentType: "image/gif", data: []byte("GIF89a")}
	huge := part{name: "photos", filename: "huge.png", contentType: "image/png", data: make([]byte, usecase.MaxPhotoSize+1)}
	fields := testCarFields()
	delete(fields, "city")
	delete(fields, "rarity")
	delete(fields, "condition")

	rr := s.do(t, multipartRequest(t, token, fields, []part{gif, pngPart(), huge}))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[publishResponse](t, rr)
	require.NotNil(t, resp.Product)
	assert.Equal(t, 1, resp.PhotoCount)
	assert.Equal(t, "Москва", resp.City)
	assert.Equal(t, domain.RarityMain, resp.Rarity)
	assert.Equal(t, domain.ConditionNew, resp.Condition)
	assert.Equal(t, []rejectedPhoto{
		{File: "anim.gif", Reason: "type", Error: domain.MsgUnsupportedType},
		{File: "huge.png", Reason: "size", Error: domain.MsgFileTooLarge},
	}, resp.Rejected)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.UploadRejectionsTotal.WithLabelValues(string(domain.RejectSize))))
	assert.Len(t, s.catalog.All(), 4)
}

func TestUpdateProduct(t *testing.T) {
	s := newTestServer(t)
	token := s.demoToken(t)
	p := s.publish(t, token)

	rr := s.do(t, jsonRequest(http.MethodPatch, "/api/products/1", token, map[string]any{"title": "Mine now"}))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	path := "/api/products/" + strconv.FormatInt(p.ID, 10)
	rr = s.do(t, jsonRequest(http.MethodPatch, path, token, map[string]any{"price": 250, "status": "sold"}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[domain.Product](t, rr)
	assert.Equal(t, int64(250), updated.Price)
	assert.Equal(t, domain.StatusSold, updated.Status)

	rr = s.do(t, jsonRequest(http.MethodPatch, path, token, map[string]any{"status": "lost"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, jsonRequest(http.MethodPatch, "/api/products/999", token, map[string]any{"title": "x"}))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteProduct(t *testing.T) {
	s := newTestServer(t)
	token := s.demoToken(t)
	p := s.publish(t, token)
	path := "/api/products/" + strconv.FormatInt(p.ID, 10)

	rr := s.do(t, jsonRequest(http.MethodPost, "/api/favorites/"+strconv.FormatInt(p.ID, 10), token, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, jsonRequest(http.MethodDelete, "/api/products/1", token, nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, jsonRequest(http.MethodDelete, path, token, nil))
	assert.Equal(t, http.StatusPreconditionRequired, rr.Code)
	assert.Equal(t, domain.MsgConfirmRequired, decode[errorResponse](t, rr).Error)

	req := jsonRequest(http.MethodDelete, path, token, nil)
	req.Header.Set(ConfirmHeader, "true")
	rr = s.do(t, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, jsonRequest(http.MethodGet, "/api/favorites", token, nil))
	assert.Empty(t, decode[[]domain.Product](t, rr))
}

func TestFavorites(t *testing.T) {
	s := newTestServer(t)
	token := s.demoToken(t)

	rr := s.do(t, jsonRequest(http.MethodPost, "/api/favorites/2", token, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[map[string]bool](t, rr)["favorited"])

	rr = s.do(t, jsonRequest(http.MethodGet, "/api/favorites", token, nil))
	favs := decode[[]domain.Product](t, rr)
	require.Len(t, favs, 1)
	assert.Equal(t, int64(2), favs[0].ID)

	rr = s.do(t, jsonRequest(http.MethodPost, "/api/favorites/2", token, nil))
	assert.False(t, decode[map[string]bool](t, rr)["favorited"])

	rr = s.do(t, jsonRequest(http.MethodPost, "/api/favorites/999", token, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)
	token := s.demoToken(t)

	rr := s.do(t, jsonRequest(http.MethodPost, "/api/auth/logout", token, nil))
	assert.Equal(t, http.StatusPreconditionRequired, rr.Code)

	req := jsonRequest(http.MethodPost, "/api/auth/logout", token, nil)
	req.Header.Set(ConfirmHeader, "true")
	rr = s.do(t, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = s.do(t, jsonRequest(http.MethodGet, "/api/me", token, nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func parseHTML(t *testing.T, rr *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	doc, err := goquery.NewDocumentFromReader(rr.Body)
	require.NoError(t, err)
	return doc
}

func TestViews(t *testing.T) {
	s := newTestServer(t)
	token := s.demoToken(t)

	doc := parseHTML(t, s.do(t, httptest.NewRequest(http.MethodGet, "/view/home", nil)))
	assert.Equal(t, 3, doc.Find(".product-card").Length())

	doc = parseHTML(t, s.do(t, httptest.NewRequest(http.MethodGet, "/view/home?filter=sth", nil)))
	assert.Equal(t, 1, doc.Find(".product-card").Length())

	doc = parseHTML(t, s.do(t, httptest.NewRequest(http.MethodGet, "/view/search?q=nothing-like-this", nil)))
	assert.Equal(t, "Ничего не найдено", doc.Find(".empty-state h4").Text())

	s.do(t, jsonRequest(http.MethodPost, "/api/favorites/3", token, nil))
	doc = parseHTML(t, s.do(t, jsonRequest(http.MethodGet, "/view/products/3", token, nil)))
	assert.Equal(t, "❤️ Удалить из избранного", doc.Find("#modal-favorite-btn").Text())
	assert.Equal(t, "https://t.me/hw_elite_bot/app#product=3", doc.Find("#modal-share-link").AttrOr("href", ""))

	doc = parseHTML(t, s.do(t, jsonRequest(http.MethodGet, "/view/favorites", token, nil)))
	assert.Equal(t, 1, doc.Find(".product-card").Length())

	doc = parseHTML(t, s.do(t, jsonRequest(http.MethodGet, "/view/my", token, nil)))
	assert.Equal(t, "У вас нет активных объявлений", doc.Find(".empty-state p").Text())

	rr := s.do(t, httptest.NewRequest(http.MethodGet, "/view/favorites", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
