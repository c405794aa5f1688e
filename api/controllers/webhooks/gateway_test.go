package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/settlement"
	gatewaywebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/gateway"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestGatewayWebhook_SuccessAndIdempotent(t *testing.T) {
	payload := buildGatewayEvent(t, "success")
	header := gatewaywebhook.Sign(payload, "secret")
	service := &fakeGatewayService{}
	guard := newGuard(t)
	handler := GatewayWebhook(service, "secret", guard, nil)

	rec := postGateway(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}

	rec2 := postGateway(handler, payload, header)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec2.Code)
	}
	if service.calls != 1 {
		t.Fatalf("duplicate should not increment calls, got %d", service.calls)
	}
	if !bytes.Contains(rec2.Body.Bytes(), []byte(`"duplicate":true`)) {
		t.Fatalf("expected duplicate ack, got %s", rec2.Body.String())
	}
}

func TestGatewayWebhook_InvalidSignature(t *testing.T) {
	payload := buildGatewayEvent(t, "success")
	service := &fakeGatewayService{}
	handler := GatewayWebhook(service, "secret", newGuard(t), nil)

	rec := postGateway(handler, payload, "invalid")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid signature, got %d", rec.Code)
	}
	rec = postGateway(handler, payload, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestGatewayWebhook_FailureAllowsRedelivery(t *testing.T) {
	payload := buildGatewayEvent(t, "success")
	header := gatewaywebhook.Sign(payload, "secret")
	service := &fakeGatewayService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "payment status transition not allowed")}
	handler := GatewayWebhook(service, "secret", newGuard(t), nil)

	rec := postGateway(handler, payload, header)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (%s)", rec.Code, rec.Body.String())
	}

	service.err = nil
	rec = postGateway(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected redelivery to be processed, got %d", rec.Code)
	}
	if service.calls != 2 {
		t.Fatalf("expected two service calls, got %d", service.calls)
	}
}

func TestGatewayWebhook_MalformedPayload(t *testing.T) {
	payload := []byte(`{"result":"success"}`)
	handler := GatewayWebhook(&fakeGatewayService{}, "secret", newGuard(t), nil)

	rec := postGateway(handler, payload, gatewaywebhook.Sign(payload, "secret"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func postGateway(handler http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(gatewaywebhook.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func buildGatewayEvent(t *testing.T, result string) []byte {
	t.Helper()
	payload, err := json.Marshal(gatewaywebhook.Event{
		EventID:    "evt_" + uuid.NewString(),
		Result:     result,
		ResultCode: "000.000.000",
		Reference:  "gw-ref",
		CustomParameters: gatewaywebhook.CustomParameters{
			TenantID: uuid.NewString(),
			OrderID:  uuid.NewString(),
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func newGuard(t *testing.T) *gatewaywebhook.ReplayGuard {
	t.Helper()
	guard, err := gatewaywebhook.NewReplayGuard(newInMemoryStore(), time.Minute, "gateway-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

type fakeGatewayService struct {
	calls int
	err   error
}

func (f *fakeGatewayService) HandleEvent(context.Context, *gatewaywebhook.Event) (*settlement.ApplyOutcome, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &settlement.ApplyOutcome{Changed: true}, nil
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: make(map[string]string)}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("sf:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
