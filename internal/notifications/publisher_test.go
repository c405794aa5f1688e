package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/storetest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type fakeResult struct {
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "msg-1", nil
}

type fakePublisher struct {
	messages []*gcppubsub.Message
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	return fakeResult{err: f.err}
}

func TestSendPublishesEncodedNotification(t *testing.T) {
	pub := &fakePublisher{}
	p, err := newPublisher(pub, storetest.Logger(), 0)
	require.NoError(t, err)

	tenantID := uuid.New()
	p.Send(context.Background(), Notification{
		TenantID: tenantID,
		Audience: enums.AudienceMerchant,
		Type:     enums.NotificationTypeOrderPlaced,
	})

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	require.Equal(t, tenantID.String(), msg.Attributes["tenant_id"])
	require.Equal(t, "order_placed", msg.Attributes["type"])

	var decoded Notification
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	require.Equal(t, enums.AudienceMerchant, decoded.Audience)
}

func TestSendSwallowsPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("unavailable")}
	p, err := newPublisher(pub, storetest.Logger(), 0)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		p.Send(context.Background(), Notification{TenantID: uuid.New()})
	})
	require.Len(t, pub.messages, 1)
}

func TestSendIgnoresCancelledCaller(t *testing.T) {
	pub := &fakePublisher{}
	p, err := newPublisher(pub, storetest.Logger(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Send(ctx, Notification{TenantID: uuid.New()})
	require.Len(t, pub.messages, 1)
}

func TestForOrderAudiences(t *testing.T) {
	customerID := uuid.New()
	order := &models.Order{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		OrderNumber: "ORD-20260101-ABCDEF12",
		CustomerID:  &customerID,
		Status:      enums.OrderStatusPending,
	}

	out := ForOrder(enums.NotificationTypeOrderPlaced, order)
	require.Len(t, out, 2)
	require.Equal(t, enums.AudienceMerchant, out[0].Audience)
	require.Equal(t, enums.AudienceCustomer, out[1].Audience)
	require.Contains(t, out[0].Body.EN, order.OrderNumber)
	require.NotEmpty(t, out[1].Body.AR)
	require.Equal(t, order.ID.String(), out[1].Data["order_id"])

	order.CustomerID = nil
	require.Len(t, ForOrder(enums.NotificationTypeOrderPlaced, order), 1)

	email := "guest@example.com"
	order.GuestEmail = &email
	guest := ForOrder(enums.NotificationTypeOrderRefunded, order)
	require.Len(t, guest, 2)
	require.Equal(t, email, guest[1].Email)

	require.Nil(t, ForOrder(enums.NotificationType("unknown"), order))
	require.Nil(t, ForOrder(enums.NotificationTypeOrderPlaced, nil))
}

func TestNewPublisherRequiresTopic(t *testing.T) {
	_, err := NewPublisher(nil, storetest.Logger(), 0)
	require.Error(t, err)
}
