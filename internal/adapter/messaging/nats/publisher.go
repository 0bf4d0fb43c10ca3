package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	platformtracer "github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/tracer"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = platformtracer.Tracer("nats")

// Publisher emits marketplace events as JSON messages.
type Publisher struct {
	conn   *nats.Conn
	logger *logger.Logger
}

func NewPublisher(url string, log *logger.Logger, appName string) (*Publisher, error) {
	log.Info("NATS publisher connecting", zap.String("url", url))

	opts := []nats.Option{
		nats.Name(fmt.Sprintf("%s NATS Publisher", appName)),
		nats.Timeout(10 * time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			log.Error("NATS error", fields...)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("NATS connection closed")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.Info("NATS publisher connected", zap.String("url", conn.ConnectedUrl()))

	return &Publisher{conn: conn, logger: log.Named("NATSPublisher")}, nil
}

func (p *Publisher) PublishProductEvent(ctx context.Context, subject string, event domain.ProductEvent) error {
	return p.publish(ctx, subject, event)
}

func (p *Publisher) PublishFavoriteEvent(ctx context.Context, event domain.FavoriteEvent) error {
	return p.publish(ctx, domain.SubjectFavoriteToggled, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	ctx, span := tracer.Start(ctx, "NATS.Publish."+subject)
	defer span.End()

	payload, err := json.Marshal(data)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal data for subject %s: %w", subject, err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = payload
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier(msg.Header))

	if err := p.conn.PublishMsg(msg); err != nil {
		p.logger.Error("failed to publish message", zap.String("subject", subject), zap.Error(err))
		span.RecordError(err)
		return fmt.Errorf("failed to publish message to subject %s: %w", subject, err)
	}

	p.logger.Debug("message published", zap.String("subject", subject), zap.Int("data_size_bytes", len(payload)))
	return nil
}

// HeaderCarrier adapts nats.Header to the otel TextMapCarrier interface.
type HeaderCarrier nats.Header

func (c HeaderCarrier) Get(key string) string {
	return nats.Header(c).Get(key)
}

func (c HeaderCarrier) Set(key string, value string) {
	nats.Header(c).Set(key, value)
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p.conn == nil || p.conn.IsClosed() {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Error("failed to drain NATS connection", zap.Error(err))
	}
	p.conn.Close()
}
