package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/settlement"
	gatewaywebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/gateway"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxGatewayPayload = 1 << 20

type GatewayWebhookService interface {
	HandleEvent(ctx context.Context, event *gatewaywebhook.Event) (*settlement.ApplyOutcome, error)
}

type GatewayReplayGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type gatewayAck struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
	Changed   bool   `json:"changed"`
}

// GatewayWebhook applies signed payment notifications from the gateway.
func GatewayWebhook(svc GatewayWebhookService, secret string, guard GatewayReplayGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxGatewayPayload))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(gatewaywebhook.SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "gateway signature missing"))
			return
		}
		if !gatewaywebhook.ValidSignature(payload, secret, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid gateway signature"))
			return
		}

		event, err := gatewaywebhook.ParseEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		seen, err := guard.CheckAndMark(ctx, event.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if seen {
			responses.WriteSuccess(w, gatewayAck{EventID: event.EventID, Duplicate: true})
			return
		}

		outcome, err := svc.HandleEvent(ctx, event)
		if err != nil {
			_ = guard.Forget(ctx, event.EventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "gateway_event_id", event.EventID), "gateway.event_processed")
		}
		responses.WriteSuccess(w, gatewayAck{EventID: event.EventID, Changed: outcome != nil && outcome.Changed})
	}
}
