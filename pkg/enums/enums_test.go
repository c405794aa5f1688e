package enums

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{OrderStatusPending, OrderStatusApproved, true},
		{OrderStatusPending, OrderStatusDelivered, true},
		{OrderStatusPending, OrderStatusRejected, true},
		{OrderStatusApproved, OrderStatusDelivered, true},
		{OrderStatusApproved, OrderStatusRejected, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusRefunded, true},
		{OrderStatusCancelled, OrderStatusDelivered, false},
		{OrderStatusCancelled, OrderStatusRefunded, true},
		{OrderStatusRejected, OrderStatusDelivered, false},
		{OrderStatusRefunded, OrderStatusRefunded, false},
		{OrderStatusRefunded, OrderStatusDelivered, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestPaymentStatusTransitions(t *testing.T) {
	if !PaymentStatusFailed.CanTransitionTo(PaymentStatusPending) {
		t.Fatal("failed payments must be retryable")
	}
	if PaymentStatusSucceeded.CanTransitionTo(PaymentStatusFailed) {
		t.Fatal("succeeded payments cannot fail")
	}
	if PaymentStatusRefunded.CanTransitionTo(PaymentStatusSucceeded) {
		t.Fatal("refunded is terminal")
	}
}

func TestWalletStateTransitions(t *testing.T) {
	if !WalletStateReserved.CanTransitionTo(WalletStateCharged) {
		t.Fatal("reserved must settle to charged")
	}
	if WalletStateReleased.CanTransitionTo(WalletStateCharged) {
		t.Fatal("released is terminal")
	}
	if WalletStateCharged.CanTransitionTo(WalletStateReserved) {
		t.Fatal("charged cannot return to reserved")
	}
}

func TestParseGatewayResultIsCaseInsensitive(t *testing.T) {
	got, err := ParseGatewayResult(" SUCCESS ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != GatewayResultSuccess {
		t.Fatalf("expected success, got %s", got)
	}
	if _, err := ParseGatewayResult("maybe"); err == nil {
		t.Fatal("expected error for unknown result")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	for _, status := range []OrderStatus{OrderStatusCancelled, OrderStatusRejected, OrderStatusRefunded} {
		if !status.IsTerminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	if OrderStatusDelivered.IsTerminal() {
		t.Fatal("delivered orders still accept refunds")
	}
}
