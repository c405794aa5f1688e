package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/fulfillment"
	"github.com/angelmondragon/storefront-backend/internal/repo"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeFinder struct {
	pending []repo.PendingFulfillment
	err     error
	minAge  time.Duration
	limit   int
}

func (f *fakeFinder) PendingFulfillments(_ context.Context, olderThan time.Duration, limit int) ([]repo.PendingFulfillment, error) {
	f.minAge = olderThan
	f.limit = limit
	return f.pending, f.err
}

type scriptedFulfiller struct {
	results map[uuid.UUID]error
	masked  map[uuid.UUID]bool
	calls   []uuid.UUID
}

func (f *scriptedFulfiller) Fulfill(_ context.Context, _ uuid.UUID, orderID uuid.UUID) (*fulfillment.Outcome, error) {
	f.calls = append(f.calls, orderID)
	if err := f.results[orderID]; err != nil {
		return nil, err
	}
	return &fulfillment.Outcome{Delivered: !f.masked[orderID], RequiresReveal: f.masked[orderID]}, nil
}

func newSweep(t *testing.T, finder *fakeFinder, ful *scriptedFulfiller) Job {
	t.Helper()
	job, err := NewFulfillmentSweepJob(FulfillmentSweepJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Finder:    finder,
		Fulfiller: ful,
	})
	if err != nil {
		t.Fatalf("NewFulfillmentSweepJob: %v", err)
	}
	return job
}

func pendingOrders(n int) []repo.PendingFulfillment {
	tenantID := uuid.New()
	out := make([]repo.PendingFulfillment, n)
	for i := range out {
		out[i] = repo.PendingFulfillment{TenantID: tenantID, OrderID: uuid.New()}
	}
	return out
}

func TestFulfillmentSweepToleratesExpectedFailures(t *testing.T) {
	pending := pendingOrders(4)
	finder := &fakeFinder{pending: pending}
	ful := &scriptedFulfiller{
		results: map[uuid.UUID]error{
			pending[1].OrderID: pkgerrors.New(pkgerrors.CodeDependency, "supplier unavailable"),
			pending[2].OrderID: pkgerrors.New(pkgerrors.CodeConflict, "fulfillment already in progress"),
		},
		masked: map[uuid.UUID]bool{pending[3].OrderID: true},
	}

	if err := newSweep(t, finder, ful).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ful.calls) != 4 {
		t.Fatalf("expected 4 fulfill calls, got %d", len(ful.calls))
	}
	if finder.minAge != defaultSweepMinAge || finder.limit != defaultSweepBatchSize {
		t.Fatalf("unexpected finder args: %s %d", finder.minAge, finder.limit)
	}
}

func TestFulfillmentSweepCombinesUnexpectedErrors(t *testing.T) {
	pending := pendingOrders(3)
	ful := &scriptedFulfiller{results: map[uuid.UUID]error{
		pending[0].OrderID: pkgerrors.New(pkgerrors.CodeInternal, "db down"),
		pending[2].OrderID: pkgerrors.New(pkgerrors.CodeIntegrity, "sealed codes unreadable"),
	}}

	err := newSweep(t, &fakeFinder{pending: pending}, ful).Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(ful.calls) != 3 {
		t.Fatalf("every order should be attempted, got %d", len(ful.calls))
	}
	if !pkgerrors.Is(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error in chain, got %v", err)
	}
}

func TestFulfillmentSweepFinderError(t *testing.T) {
	err := newSweep(t, &fakeFinder{err: errors.New("boom")}, &scriptedFulfiller{}).Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
}

type fakeAuditor struct {
	recorded int
	err      error
}

func (f fakeAuditor) Audit(context.Context) (int, error) { return f.recorded, f.err }

func TestEmergencyAuditJob(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	job, err := NewEmergencyAuditJob(EmergencyAuditJobParams{Logger: logg, Auditor: fakeAuditor{recorded: 3}})
	if err != nil {
		t.Fatalf("NewEmergencyAuditJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	failing, _ := NewEmergencyAuditJob(EmergencyAuditJobParams{Logger: logg, Auditor: fakeAuditor{err: errors.New("boom")}})
	if err := failing.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := NewEmergencyAuditJob(EmergencyAuditJobParams{Logger: logg}); err == nil {
		t.Fatal("expected error without auditor")
	}
}
