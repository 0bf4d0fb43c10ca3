package usecase

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
)

// ErrNoBotToken is returned when Telegram sign-in is attempted without a
// configured bot token. Without one any caller could sign init data.
var ErrNoBotToken = errors.New("telegram bot token is not configured")

// HostUser is the user object the Telegram host passes to the mini-app.
type HostUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
	PhotoURL     string `json:"photo_url"`
}

// InitDataVerifier checks the signature of Telegram WebApp init data.
type InitDataVerifier struct {
	botToken string
	maxAge   time.Duration
}

// NewInitDataVerifier keeps the bot token the host signs with.
// A zero maxAge disables the freshness check.
func NewInitDataVerifier(botToken string, maxAge time.Duration) *InitDataVerifier {
	return &InitDataVerifier{botToken: botToken, maxAge: maxAge}
}

// Enabled reports whether a bot token is configured.
func (v *InitDataVerifier) Enabled() bool {
	return v != nil && v.botToken != ""
}

// Sign returns init data carrying values, signed the way the Telegram host
// signs it at authDate.
func (v *InitDataVerifier) Sign(values url.Values, authDate time.Time) (string, error) {
	if !v.Enabled() {
		return "", ErrNoBotToken
	}
	signed := url.Values{}
	for k, vs := range values {
		if k == "hash" || k == "auth_date" {
			continue
		}
		signed[k] = append([]string(nil), vs...)
	}
	hash, err := initdata.SignQueryString(signed.Encode(), v.botToken, authDate)
	if err != nil {
		return "", fmt.Errorf("sign init data: %w", err)
	}
	signed.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	signed.Set("hash", hash)
	return signed.Encode(), nil
}

// Verify validates raw init data and returns the embedded user.
func (v *InitDataVerifier) Verify(raw string) (*HostUser, error) {
	if !v.Enabled() {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInitData, ErrNoBotToken)
	}
	if err := initdata.Validate(raw, v.botToken, v.maxAge); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInitData, err)
	}
	data, err := initdata.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInitData, err)
	}
	u := data.User
	if u.ID == 0 {
		return nil, fmt.Errorf("%w: user id missing", domain.ErrInvalidInitData)
	}
	return &HostUser{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		LanguageCode: u.LanguageCode,
		PhotoURL:     u.PhotoURL,
	}, nil
}
