package gatewaywebhook

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/fulfillment"
	"github.com/angelmondragon/storefront-backend/internal/settlement"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type resultApplier interface {
	ApplyGatewayResult(ctx context.Context, in settlement.GatewayResult) (*settlement.ApplyOutcome, error)
}

type fulfiller interface {
	Fulfill(ctx context.Context, tenantID, orderID uuid.UUID) (*fulfillment.Outcome, error)
}

type ServiceParams struct {
	Settlement  resultApplier
	Fulfillment fulfiller
	Logger      *logger.Logger
}

// Service applies gateway payment notifications to orders.
type Service struct {
	settlement  resultApplier
	fulfillment fulfiller
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement reconciler required")
	}
	if params.Fulfillment == nil {
		return nil, fmt.Errorf("fulfillment service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		settlement:  params.Settlement,
		fulfillment: params.Fulfillment,
		logg:        params.Logger,
	}, nil
}

// HandleEvent applies the result and, once payment succeeded for an order
// with instant items, runs fulfillment. Fulfillment errors are logged only;
// the retry sweep picks the order up again.
func (s *Service) HandleEvent(ctx context.Context, event *Event) (*settlement.ApplyOutcome, error) {
	in, err := event.GatewayResult()
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithTenantID(ctx, in.TenantID.String())
	ctx = s.logg.WithOrderID(ctx, in.OrderID.String())
	ctx = s.logg.WithField(ctx, "gateway_event_id", event.EventID)

	outcome, err := s.settlement.ApplyGatewayResult(ctx, in)
	if err != nil {
		return nil, err
	}
	if !outcome.NeedsFulfillment {
		return outcome, nil
	}

	if _, err := s.fulfillment.Fulfill(ctx, in.TenantID, in.OrderID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "gateway.fulfillment_deferred")
	}
	return outcome, nil
}
