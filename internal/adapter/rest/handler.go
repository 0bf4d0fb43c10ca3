package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/rest/middleware"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/usecase"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/view"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/metrics"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxUploadMemory = 8 << 20
)

// Deps are the collaborators of the REST handler. Metrics is optional.
type Deps struct {
	Catalog   *usecase.Catalog
	Favorites *usecase.Favorites
	Users     domain.UserRepository
	Verifier  *usecase.InitDataVerifier
	Tokens    *middleware.TokenManager
	Renderer  *view.Renderer
	Metrics   *metrics.MetricsManager
	Logger    *logger.Logger
	BaseURL   string
}

// Handler serves the shared catalog. Identity and favorites are scoped by
// the authenticated user id.
type Handler struct {
	catalog   *usecase.Catalog
	favorites *usecase.Favorites
	users     domain.UserRepository
	verifier  *usecase.InitDataVerifier
	tokens    *middleware.TokenManager
	renderer  *view.Renderer
	metrics   *metrics.MetricsManager
	logger    *logger.Logger
	baseURL   string
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		catalog:   d.Catalog,
		favorites: d.Favorites,
		users:     d.Users,
		verifier:  d.Verifier,
		tokens:    d.Tokens,
		renderer:  d.Renderer,
		metrics:   d.Metrics,
		logger:    d.Logger.Named("rest"),
		baseURL:   d.BaseURL,
	}
}

type authRequest struct {
	InitData string `json:"initData"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

type profileRequest struct {
	Name     string `json:"name"`
	Telegram string `json:"telegram"`
	City     string `json:"city"`
}

type profileResponse struct {
	User      *domain.User      `json:"user"`
	Stats     domain.OwnerStats `json:"stats"`
	Favorites int               `json:"favorites"`
}

type patchRequest struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	Price       *json.Number `json:"price"`
	City        *string      `json:"city"`
	Status      *string      `json:"status"`
}

func (p patchRequest) toPatch() domain.Patch {
	patch := domain.Patch{
		Title:       p.Title,
		Description: p.Description,
		City:        p.City,
		Status:      p.Status,
	}
	if p.Price != nil {
		s := p.Price.String()
		patch.Price = &s
	}
	return patch
}

func (h *Handler) session(userID string) *usecase.Session {
	return usecase.NewSession(h.users, userID, h.logger)
}

// currentUser resolves the identity record behind the request token.
func (h *Handler) currentUser(ctx context.Context) (*domain.User, error) {
	userID := middleware.UserIDFromContext(ctx)
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	u, err := h.session(userID).Restore(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrUnauthenticated
	}
	return u, nil
}

func (h *Handler) favoritesOf(ctx context.Context) view.FavoriteChecker {
	if userID := middleware.UserIDFromContext(ctx); userID != "" {
		return h.favorites.For(ctx, userID)
	}
	return nil
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) signedIn(w http.ResponseWriter, r *http.Request, u *domain.User) {
	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: u})
}

func (h *Handler) AuthTelegram(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	host, err := h.verifier.Verify(req.InitData)
	if err != nil {
		h.logger.Warn("telegram init data rejected", zap.Error(err))
		h.writeError(w, r, err)
		return
	}
	u, err := h.session(strconv.FormatInt(host.ID, 10)).SignInWithHost(r.Context(), host)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.signedIn(w, r, u)
}

func (h *Handler) AuthDemo(w http.ResponseWriter, r *http.Request) {
	u, err := h.session(domain.DemoUserID).SignInDemo(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.signedIn(w, r, u)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if !confirmed(r) {
		h.writeError(w, r, domain.ErrConfirmationRequired)
		return
	}
	userID := middleware.UserIDFromContext(r.Context())
	if err := h.session(userID).Logout(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) profile(ctx context.Context, u *domain.User) profileResponse {
	return profileResponse{
		User:      u,
		Stats:     h.catalog.OwnerStats(u.ID),
		Favorites: h.favorites.For(ctx, u.ID).Len(),
	}
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.profile(r.Context(), u))
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	ctx := r.Context()
	userID := middleware.UserIDFromContext(ctx)
	s := h.session(userID)
	if u, err := s.Restore(ctx); err != nil || u == nil {
		h.writeError(w, r, domain.ErrUnauthenticated)
		return
	}
	u, err := s.UpdateProfile(ctx, req.Name, req.Telegram, req.City)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.profile(ctx, u))
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products := h.catalog.List(q.Get("category"))

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(len(products)))
	start := (page - 1) * limit
	if start >= len(products) {
		writeJSON(w, http.StatusOK, []*domain.Product{})
		return
	}
	end := min(start+limit, len(products))
	writeJSON(w, http.StatusOK, products[start:end])
}

func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	res := h.catalog.Search(r.URL.Query().Get("q"))
	if res.Products == nil {
		res.Products = []*domain.Product{}
	}
	writeJSON(w, http.StatusOK, res.Products)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p := h.catalog.Get(id)
	if p == nil {
		h.writeError(w, r, domain.ErrProductNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ContactSeller(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	link, err := h.catalog.ContactLink(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

func (h *Handler) UserProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.ByOwner(chi.URLParam(r, "id")))
}

// readPhotos buffers the "photos" parts of a multipart form. Every file is
// read to at most one byte past the size limit so oversize uploads are
// still rejected by the intake.
func readPhotos(r *http.Request) ([]usecase.PhotoFile, error) {
	var files []usecase.PhotoFile
	for _, fh := range r.MultipartForm.File["photos"] {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(io.LimitReader(f, usecase.MaxPhotoSize+1))
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, usecase.PhotoFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

func (h *Handler) PublishProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.currentUser(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}
	files, err := readPhotos(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable photo"})
		return
	}

	intake := usecase.NewPhotoIntake()
	_, rejected := intake.AddBatch(files)
	for _, rej := range rejected {
		h.logger.Info("photo rejected", zap.String("file", rej.File), zap.String("reason", string(rej.Reason)))
		if h.metrics != nil {
			h.metrics.UploadRejectionsTotal.WithLabelValues(string(rej.Reason)).Inc()
		}
	}

	draft := domain.Draft{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Price:       r.FormValue("price"),
		Rarity:      r.FormValue("rarity"),
		Condition:   r.FormValue("condition"),
		City:        r.FormValue("city"),
		Telegram:    r.FormValue("telegram"),
	}
	p, err := h.catalog.Publish(ctx, draft.WithDefaults(u), u, intake)
	if err != nil {
		status, resp := h.errorBody(r, err)
		if len(rejected) > 0 {
			resp.Rejected = rejectedPhotos(rejected)
		}
		writeJSON(w, status, resp)
		return
	}
	resp := publishResponse{Product: p}
	if len(rejected) > 0 {
		resp.Rejected = rejectedPhotos(rejected)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// publishResponse is the created listing plus the uploads that were left
// out of it.
type publishResponse struct {
	*domain.Product
	Rejected []rejectedPhoto `json:"rejected,omitempty"`
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := h.catalog.CheckOwner(id, middleware.UserIDFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.catalog.Update(r.Context(), id, req.toPatch())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if p == nil {
		h.writeError(w, r, domain.ErrProductNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.catalog.CheckOwner(id, middleware.UserIDFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	if !confirmed(r) {
		h.writeError(w, r, domain.ErrConfirmationRequired)
		return
	}
	if _, err := h.catalog.Remove(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// favoriteProducts resolves a ledger to the products that still exist and
// are on sale.
func (h *Handler) favoriteProducts(ctx context.Context, userID string) []*domain.Product {
	ids := h.favorites.For(ctx, userID).IDs()
	out := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		if p := h.catalog.Get(id); p != nil && p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, h.favoriteProducts(r.Context(), userID))
}

func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r, "productId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.catalog.Get(id) == nil {
		h.writeError(w, r, domain.ErrProductNotFound)
		return
	}
	userID := middleware.UserIDFromContext(r.Context())
	favorited, err := h.favorites.Toggle(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorited": favorited})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, html string, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeHTML(w, html)
}

func (h *Handler) ViewHome(w http.ResponseWriter, r *http.Request) {
	filter := strings.TrimSpace(r.URL.Query().Get("filter"))
	html, err := h.renderer.Home(h.catalog.List(filter), filter, h.favoritesOf(r.Context()))
	h.render(w, r, html, err)
}

func (h *Handler) ViewSearch(w http.ResponseWriter, r *http.Request) {
	html, err := h.renderer.Search(h.catalog.Search(r.URL.Query().Get("q")), h.favoritesOf(r.Context()))
	h.render(w, r, html, err)
}

func (h *Handler) ViewFavorites(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		h.writeError(w, r, domain.ErrUnauthenticated)
		return
	}
	html, err := h.renderer.Favorites(h.favoriteProducts(r.Context(), userID))
	h.render(w, r, html, err)
}

func (h *Handler) ViewMy(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		h.writeError(w, r, domain.ErrUnauthenticated)
		return
	}
	html, err := h.renderer.MyListings(h.catalog.ByOwner(userID), h.catalog.OwnerStats(userID))
	h.render(w, r, html, err)
}

func (h *Handler) ViewProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p := h.catalog.Get(id)
	if p == nil {
		h.writeError(w, r, domain.ErrProductNotFound)
		return
	}
	userID := middleware.UserIDFromContext(r.Context())
	pg := view.ProductPage{
		Product:  p,
		Owner:    userID != "" && p.Seller.ID == userID,
		ShareURL: usecase.ShareLink(h.baseURL, id),
	}
	if favs := h.favoritesOf(r.Context()); favs != nil {
		pg.Favorited = favs.Has(id)
	}
	if link, err := h.catalog.ContactLink(id); err == nil {
		pg.ContactURL = link
	}
	html, err := h.renderer.Product(pg)
	h.render(w, r, html, err)
}
