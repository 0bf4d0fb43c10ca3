package mailer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"gopkg.in/gomail.v2"
)

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// ModerationMailer emails a moderator about every new listing.
type ModerationMailer struct {
	dialer  Dialer
	from    string
	to      string
	baseURL string
}

func NewModerationMailer(dialer Dialer, from, to, baseURL string) *ModerationMailer {
	return &ModerationMailer{dialer: dialer, from: from, to: to, baseURL: baseURL}
}

// NewSMTPDialer builds a gomail dialer for the given SMTP account.
func NewSMTPDialer(host string, port int, user, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, user, password)
}

func (m *ModerationMailer) NotifyPublished(ctx context.Context, p *domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(m.BuildMessage(p)); err != nil {
		return fmt.Errorf("send moderation mail for %d: %w", p.ID, err)
	}
	return nil
}

// BuildMessage renders the moderation email for a listing.
func (m *ModerationMailer) BuildMessage(p *domain.Product) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to)
	msg.SetHeader("Subject", "Новое объявление: "+p.Title)
	msg.SetBody("text/plain", fmt.Sprintf(
		"Название: %s\nЦена: %d ₽\nКатегория: %s\nСостояние: %s\nГород: %s\nПродавец: %s (%s)\nСсылка: %s#product=%s\n\n%s\n",
		p.Title, p.Price, p.Rarity.Label(), p.Condition.Label(), p.City,
		p.Seller.Name, p.Seller.Telegram, m.baseURL, strconv.FormatInt(p.ID, 10), p.Description,
	))
	return msg
}
