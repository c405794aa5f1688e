package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultPublishTimeout = 5 * time.Second

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// Publisher sends notifications to the notification topic. Delivery is best
// effort: failures are logged and never returned to the caller.
type Publisher struct {
	pub     publisher
	logg    *logger.Logger
	timeout time.Duration
}

// NewPublisher wraps the Pub/Sub topic publisher.
func NewPublisher(topic *gcppubsub.Publisher, logg *logger.Logger, timeout time.Duration) (*Publisher, error) {
	if topic == nil {
		return nil, fmt.Errorf("notification topic publisher required")
	}
	return newPublisher(&topicPublisher{topic: topic}, logg, timeout)
}

func newPublisher(pub publisher, logg *logger.Logger, timeout time.Duration) (*Publisher, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Publisher{pub: pub, logg: logg, timeout: timeout}, nil
}

// Send publishes n and waits for the server ack up to the configured timeout.
func (p *Publisher) Send(ctx context.Context, n Notification) {
	logCtx := p.logg.WithFields(ctx, map[string]any{
		"tenant_id":         n.TenantID.String(),
		"notification_type": string(n.Type),
		"audience":          string(n.Audience),
	})

	body, err := json.Marshal(n)
	if err != nil {
		p.logg.Error(logCtx, "notification.encode_failed", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	msg := &gcppubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"tenant_id": n.TenantID.String(),
			"type":      string(n.Type),
			"audience":  string(n.Audience),
		},
	}
	if _, err := p.pub.Publish(pubCtx, msg).Get(pubCtx); err != nil {
		p.logg.Warn(logCtx, "notification.publish_failed: "+err.Error())
		return
	}
	p.logg.Info(logCtx, "notification.sent")
}

// Sender is satisfied by Publisher and Nop.
type Sender interface {
	Send(ctx context.Context, n Notification)
}

// Nop drops every notification. It is used when no topic is configured.
type Nop struct{}

func (Nop) Send(context.Context, Notification) {}

type topicPublisher struct {
	topic *gcppubsub.Publisher
}

func (t *topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return t.topic.Publish(ctx, msg)
}
