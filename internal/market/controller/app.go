// Package controller holds the single-session application state and the
// action table that drives it.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/usecase"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/view"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
)

type Page string

const (
	PageHome      Page = "home"
	PageSearch    Page = "search"
	PageFavorites Page = "favorites"
	PageMy        Page = "my"
	PageProfile   Page = "profile"
	PageProduct   Page = "product"
	PageSell      Page = "sell"
)

func ParsePage(s string) (Page, bool) {
	switch p := Page(s); p {
	case PageHome, PageSearch, PageFavorites, PageMy, PageProfile, PageProduct, PageSell:
		return p, true
	}
	return "", false
}

// State is everything the running session remembers between actions.
type State struct {
	User        *domain.User
	Page        Page
	Filter      string
	Query       string
	OpenProduct int64
}

// Binding names one user action.
type Binding struct {
	Component string
	Action    string
}

func (b Binding) String() string { return b.Component + "/" + b.Action }

// Event is the input of a dispatched action. Handlers read only the fields
// their action needs.
type Event struct {
	Binding
	ProductID int64
	Value     string
	Index     int
	Draft     domain.Draft
	Patch     domain.Patch
	Profile   ProfileForm
	Files     []usecase.PhotoFile
	InitData  string
	Confirmed bool
}

type ProfileForm struct {
	Name     string
	Telegram string
	City     string
}

const (
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notice is a transient single-line message shown after an action.
type Notice struct {
	Level   string
	Message string
}

// Result is what the shell redraws after an action.
type Result struct {
	Page     Page
	Fragment string
	Notice   *Notice
	// Notices holds every notice of an action that raised more than one.
	// Notice is always its first element.
	Notices []Notice
	// Link is set by actions that open an external target.
	Link string
}

type Handler func(ctx context.Context, ev Event) (Result, error)

// Deps are the collaborators of an App.
type Deps struct {
	Session   *usecase.Session
	Catalog   *usecase.Catalog
	Favorites *usecase.Favorites
	Intake    *usecase.PhotoIntake
	Renderer  *view.Renderer
	Verifier  *usecase.InitDataVerifier
	Logger    *logger.Logger
	// Scope keys the favorites ledger of this session.
	Scope   string
	BaseURL string
}

// App is the explicit application state plus its action table. Actions are
// serialized: one runs at a time.
type App struct {
	mu    sync.Mutex
	state State
	deps  Deps

	logger   *logger.Logger
	Bindings map[Binding]Handler
}

var errUnknownAction = errors.New("unknown action")

func NewApp(deps Deps) *App {
	if deps.Intake == nil {
		deps.Intake = usecase.NewPhotoIntake()
	}
	a := &App{
		state:  State{Page: PageHome, Filter: domain.RarityAll},
		deps:   deps,
		logger: deps.Logger.Named("App"),
	}
	a.Bindings = map[Binding]Handler{
		{"app", "start"}:        a.start,
		{"nav", "show"}:         a.show,
		{"session", "demo"}:     a.signInDemo,
		{"session", "telegram"}: a.signInTelegram,
		{"session", "logout"}:   a.logout,
		{"session", "profile"}:  a.updateProfile,
		{"catalog", "filter"}:   a.filter,
		{"catalog", "search"}:   a.search,
		{"catalog", "open"}:     a.open,
		{"catalog", "publish"}:  a.publish,
		{"catalog", "edit"}:     a.edit,
		{"catalog", "delete"}:   a.remove,
		{"catalog", "contact"}:  a.contact,
		{"catalog", "share"}:    a.share,
		{"favorites", "toggle"}: a.toggleFavorite,
		{"intake", "add"}:       a.addPhotos,
		{"intake", "remove"}:    a.removePhoto,
		{"intake", "clear"}:     a.clearPhotos,
	}
	return a
}

// State returns a copy of the current state.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *App) Intake() *usecase.PhotoIntake { return a.deps.Intake }

// Dispatch runs the handler bound to ev. Failures never escape: they are
// logged and turned into an error notice over the current page.
func (a *App) Dispatch(ctx context.Context, ev Event) (res Result) {
	a.mu.Lock()
	defer a.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("action panicked", zap.String("action", ev.Binding.String()), zap.Any("panic", r))
			res = a.failure(ctx, fmt.Errorf("action %s: %v", ev.Binding, r))
		}
	}()

	h, ok := a.Bindings[ev.Binding]
	if !ok {
		return a.failure(ctx, fmt.Errorf("%w: %s", errUnknownAction, ev.Binding))
	}
	res, err := h(ctx, ev)
	if err != nil {
		a.logger.Warn("action failed", zap.String("action", ev.Binding.String()), zap.Error(err))
		return a.failure(ctx, err)
	}
	return res
}

func (a *App) failure(ctx context.Context, err error) Result {
	res, rerr := a.render(ctx)
	if rerr != nil {
		a.logger.Error("failed to redraw page", zap.Error(rerr))
		res = Result{Page: a.state.Page}
	}
	msg := domain.UserMessage(err)
	if errors.Is(err, errUnknownAction) {
		msg = "Неизвестное действие"
	}
	res.Notice = &Notice{Level: LevelError, Message: msg}
	return res
}

func success(res Result, msg string) Result {
	res.Notice = &Notice{Level: LevelSuccess, Message: msg}
	return res
}

func warn(res Result, msgs ...string) Result {
	for _, m := range msgs {
		res.Notices = append(res.Notices, Notice{Level: LevelWarning, Message: m})
	}
	if len(res.Notices) > 0 {
		res.Notice = &res.Notices[0]
	}
	return res
}

func (a *App) requireUser() (*domain.User, error) {
	if a.state.User == nil {
		return nil, domain.ErrUnauthenticated
	}
	return a.state.User, nil
}

func (a *App) ledger(ctx context.Context) *usecase.Ledger {
	return a.deps.Favorites.For(ctx, a.deps.Scope)
}
