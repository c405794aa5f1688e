package gatewaywebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/fulfillment"
	"github.com/angelmondragon/storefront-backend/internal/settlement"
	"github.com/angelmondragon/storefront-backend/internal/storetest"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type fakeApplier struct {
	outcome *settlement.ApplyOutcome
	err     error
	got     []settlement.GatewayResult
}

func (f *fakeApplier) ApplyGatewayResult(_ context.Context, in settlement.GatewayResult) (*settlement.ApplyOutcome, error) {
	f.got = append(f.got, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

type fakeFulfiller struct {
	calls int
	err   error
}

func (f *fakeFulfiller) Fulfill(context.Context, uuid.UUID, uuid.UUID) (*fulfillment.Outcome, error) {
	f.calls++
	return &fulfillment.Outcome{}, f.err
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "sf:idempotency:" + scope + ":" + id
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func eventFor(result string, tenantID, orderID uuid.UUID) *Event {
	return &Event{
		EventID:    uuid.NewString(),
		Result:     result,
		ResultCode: "000.100.110",
		Reference:  "gw-123",
		CustomParameters: CustomParameters{
			TenantID: tenantID.String(),
			OrderID:  orderID.String(),
		},
	}
}

func newTestService(t *testing.T, applier *fakeApplier, ful *fakeFulfiller) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Settlement: applier, Fulfillment: ful, Logger: storetest.Logger()})
	require.NoError(t, err)
	return svc
}

func TestHandleEventSuccessRunsFulfillment(t *testing.T) {
	applier := &fakeApplier{outcome: &settlement.ApplyOutcome{Changed: true, NeedsFulfillment: true}}
	ful := &fakeFulfiller{}
	svc := newTestService(t, applier, ful)
	tenantID, orderID := uuid.New(), uuid.New()

	outcome, err := svc.HandleEvent(context.Background(), eventFor("SUCCESS", tenantID, orderID))
	require.NoError(t, err)
	require.True(t, outcome.Changed)
	require.Equal(t, 1, ful.calls)
	require.Len(t, applier.got, 1)
	require.Equal(t, enums.GatewayResultSuccess, applier.got[0].Result)
	require.Equal(t, orderID, applier.got[0].OrderID)
	require.Equal(t, "gw-123", applier.got[0].Reference)
}

func TestHandleEventFulfillmentErrorIsNotFatal(t *testing.T) {
	applier := &fakeApplier{outcome: &settlement.ApplyOutcome{NeedsFulfillment: true}}
	ful := &fakeFulfiller{err: pkgerrors.New(pkgerrors.CodeDependency, "supplier down")}
	svc := newTestService(t, applier, ful)

	_, err := svc.HandleEvent(context.Background(), eventFor("success", uuid.New(), uuid.New()))
	require.NoError(t, err)
	require.Equal(t, 1, ful.calls)
}

func TestHandleEventPendingAndFailedSkipFulfillment(t *testing.T) {
	for _, result := range []string{"pending", "failed"} {
		applier := &fakeApplier{outcome: &settlement.ApplyOutcome{Changed: true}}
		ful := &fakeFulfiller{}
		svc := newTestService(t, applier, ful)

		_, err := svc.HandleEvent(context.Background(), eventFor(result, uuid.New(), uuid.New()))
		require.NoError(t, err)
		require.Zero(t, ful.calls, result)
	}
}

func TestHandleEventRejectsBadPayload(t *testing.T) {
	applier := &fakeApplier{outcome: &settlement.ApplyOutcome{}}
	svc := newTestService(t, applier, &fakeFulfiller{})

	_, err := svc.HandleEvent(context.Background(), eventFor("maybe", uuid.New(), uuid.New()))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	bad := eventFor("success", uuid.New(), uuid.New())
	bad.CustomParameters.OrderID = "not-a-uuid"
	_, err = svc.HandleEvent(context.Background(), bad)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	require.Empty(t, applier.got)
}

func TestHandleEventPropagatesSettlementError(t *testing.T) {
	applier := &fakeApplier{err: pkgerrors.New(pkgerrors.CodeStateConflict, "payment status transition not allowed")}
	ful := &fakeFulfiller{}
	svc := newTestService(t, applier, ful)

	_, err := svc.HandleEvent(context.Background(), eventFor("success", uuid.New(), uuid.New()))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	require.Zero(t, ful.calls)
}

func TestParseEvent(t *testing.T) {
	tenantID, orderID := uuid.New(), uuid.New()
	payload, err := json.Marshal(map[string]any{
		"event_id":    " evt-1 ",
		"result":      "success",
		"result_code": "000.000.000",
		"reference":   "ref",
		"amount":      "42.50",
		"custom_parameters": map[string]string{
			"tenant_id": tenantID.String(),
			"order_id":  orderID.String(),
		},
	})
	require.NoError(t, err)

	event, err := ParseEvent(payload)
	require.NoError(t, err)
	require.Equal(t, "evt-1", event.EventID)
	in, err := event.GatewayResult()
	require.NoError(t, err)
	require.True(t, in.Amount.Equal(storetest.Money("42.50")))
	require.Equal(t, tenantID, in.TenantID)

	_, err = ParseEvent([]byte(`{"result":"success"}`))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = ParseEvent([]byte(`{`))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestValidSignature(t *testing.T) {
	payload := []byte(`{"event_id":"evt"}`)
	sig := Sign(payload, "secret")

	require.True(t, ValidSignature(payload, "secret", sig))
	require.True(t, ValidSignature(payload, "secret", "sha256="+sig))
	require.False(t, ValidSignature(payload, "other", sig))
	require.False(t, ValidSignature([]byte(`{"event_id":"evt2"}`), "secret", sig))
	require.False(t, ValidSignature(payload, "", sig))
	require.False(t, ValidSignature(payload, "secret", ""))
}

func TestReplayGuard(t *testing.T) {
	guard, err := NewReplayGuard(newMemoryStore(), time.Hour, "gateway-webhook")
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(context.Background(), "evt-1")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = guard.CheckAndMark(context.Background(), "evt-1")
	require.NoError(t, err)
	require.True(t, seen)

	require.NoError(t, guard.Forget(context.Background(), "evt-1"))
	seen, err = guard.CheckAndMark(context.Background(), "evt-1")
	require.NoError(t, err)
	require.False(t, seen)

	_, err = guard.CheckAndMark(context.Background(), "")
	require.Error(t, err)

	_, err = NewReplayGuard(nil, time.Hour, "x")
	require.Error(t, err)
	_, err = NewReplayGuard(newMemoryStore(), time.Hour, "")
	require.Error(t, err)
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(ServiceParams{Fulfillment: &fakeFulfiller{}, Logger: storetest.Logger()})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Settlement: &fakeApplier{}, Logger: storetest.Logger()})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Settlement: &fakeApplier{}, Fulfillment: &fakeFulfiller{}})
	require.Error(t, err)
}
