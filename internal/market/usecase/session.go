package usecase

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"go.uber.org/zap"
)

type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticated
)

func (s SessionState) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Session resolves and persists the identity of one scope.
type Session struct {
	mu     sync.RWMutex
	repo   domain.UserRepository
	scope  string
	user   *domain.User
	logger *logger.Logger
	now    func() time.Time
}

func NewSession(repo domain.UserRepository, scope string, log *logger.Logger) *Session {
	return &Session{
		repo:   repo,
		scope:  scope,
		logger: log.Named("Session").With(zap.String("scope", scope)),
		now:    time.Now,
	}
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return Unauthenticated
	}
	return Authenticated
}

// Current returns a copy of the signed-in user, or nil.
func (s *Session) Current() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Restore resumes a persisted identity. An unreadable record is treated as
// absent.
func (s *Session) Restore(ctx context.Context) (*domain.User, error) {
	u, err := s.repo.LoadUser(ctx, s.scope)
	if err != nil {
		s.logger.Warn("stored identity unreadable", zap.Error(err))
		return nil, nil
	}
	if u == nil {
		return nil, nil
	}
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	return s.Current(), nil
}

// UserFromHost builds the identity record for a verified Telegram user.
func UserFromHost(h *HostUser, now time.Time) *domain.User {
	id := strconv.FormatInt(h.ID, 10)
	u := &domain.User{
		ID:               id,
		Username:         h.Username,
		FirstName:        h.FirstName,
		LastName:         h.LastName,
		Avatar:           domain.Initial(h.FirstName, "", "TG"),
		RegistrationDate: now.UTC(),
	}
	if u.Username == "" {
		u.Username = "user_" + id
	} else {
		u.Telegram = "@" + h.Username
	}
	if u.FirstName == "" {
		u.FirstName = "Пользователь"
	}
	return u
}

// SignInWithHost authenticates a verified host user. Profile edits made
// earlier under the same id are kept.
func (s *Session) SignInWithHost(ctx context.Context, h *HostUser) (*domain.User, error) {
	u := UserFromHost(h, s.now())
	if prev, err := s.repo.LoadUser(ctx, s.scope); err == nil && prev != nil && prev.ID == u.ID {
		u = prev
	}
	return s.signIn(ctx, u)
}

func (s *Session) SignInDemo(ctx context.Context) (*domain.User, error) {
	return s.signIn(ctx, domain.DemoUser(s.now().UTC()))
}

func (s *Session) signIn(ctx context.Context, u *domain.User) (*domain.User, error) {
	if err := s.repo.SaveUser(ctx, s.scope, u); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	s.logger.Info("signed in", zap.String("user_id", u.ID))
	return s.Current(), nil
}

// Logout clears the persisted record and returns to Unauthenticated.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.repo.ClearUser(ctx, s.scope); err != nil {
		return err
	}
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	return nil
}

// UpdateProfile edits the current user. Existing seller snapshots are not
// touched.
func (s *Session) UpdateProfile(ctx context.Context, name, telegram, city string) (*domain.User, error) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil, domain.ErrUnauthenticated
	}
	u := *s.user
	s.mu.Unlock()

	u.FirstName = strings.TrimSpace(name)
	u.Telegram = strings.TrimSpace(telegram)
	u.City = strings.TrimSpace(city)
	u.Avatar = domain.Initial(u.FirstName, "", "?")

	if err := s.repo.SaveUser(ctx, s.scope, &u); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	return s.Current(), nil
}
