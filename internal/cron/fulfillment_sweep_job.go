package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/fulfillment"
	"github.com/angelmondragon/storefront-backend/internal/repo"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultSweepMinAge    = 5 * time.Minute
	defaultSweepBatchSize = 25
)

type pendingFulfillmentFinder interface {
	PendingFulfillments(ctx context.Context, olderThan time.Duration, limit int) ([]repo.PendingFulfillment, error)
}

type orderFulfiller interface {
	Fulfill(ctx context.Context, tenantID, orderID uuid.UUID) (*fulfillment.Outcome, error)
}

type FulfillmentSweepJobParams struct {
	Logger    *logger.Logger
	Finder    pendingFulfillmentFinder
	Fulfiller orderFulfiller
	MinAge    time.Duration
	BatchSize int
}

// NewFulfillmentSweepJob retries digital deliveries that are paid or
// wallet-pending but were never completed.
func NewFulfillmentSweepJob(params FulfillmentSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Finder == nil {
		return nil, fmt.Errorf("pending fulfillment finder required")
	}
	if params.Fulfiller == nil {
		return nil, fmt.Errorf("fulfiller required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultSweepMinAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &fulfillmentSweepJob{
		logg:      params.Logger,
		finder:    params.Finder,
		fulfiller: params.Fulfiller,
		minAge:    minAge,
		batchSize: batch,
	}, nil
}

type fulfillmentSweepJob struct {
	logg      *logger.Logger
	finder    pendingFulfillmentFinder
	fulfiller orderFulfiller
	minAge    time.Duration
	batchSize int
}

func (j *fulfillmentSweepJob) Name() string { return "fulfillment-sweep" }

// Run treats supplier failures and in-flight orders as expected outcomes;
// they are recorded on the order and retried next cycle. Anything else fails
// the job.
func (j *fulfillmentSweepJob) Run(ctx context.Context) error {
	pending, err := j.finder.PendingFulfillments(ctx, j.minAge, j.batchSize)
	if err != nil {
		return err
	}

	var errs error
	delivered, masked, deferred := 0, 0, 0
	for _, p := range pending {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		out, err := j.fulfiller.Fulfill(ctx, p.TenantID, p.OrderID)
		switch {
		case err == nil && out != nil && out.Delivered:
			delivered++
		case err == nil:
			masked++
		case pkgerrors.Is(err, pkgerrors.CodeDependency), pkgerrors.Is(err, pkgerrors.CodeConflict):
			deferred++
		default:
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", p.OrderID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(pending),
		"delivered":  delivered,
		"masked":     masked,
		"deferred":   deferred,
		"failed":     len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "fulfillment sweep complete")
	return errs
}
