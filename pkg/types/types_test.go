package types

import "testing"

func TestNewLocalizedTextFallsBackToEnglish(t *testing.T) {
	text := NewLocalizedText("Delivery failed", "")
	if text.AR != "Delivery failed" {
		t.Fatalf("expected arabic fallback, got %q", text.AR)
	}
	if text.IsEmpty() {
		t.Fatal("expected non-empty text")
	}
}

func TestDeliveryCodeMasked(t *testing.T) {
	code := DeliveryCode{ProductID: "p1", Serial: "ABC-123", PIN: "9999"}
	masked := code.Masked()
	if masked.Serial != MaskedCode || masked.PIN != MaskedCode {
		t.Fatalf("expected masked code, got %+v", masked)
	}
	if masked.ProductID != "p1" {
		t.Fatalf("product id must survive masking")
	}

	noPIN := DeliveryCode{ProductID: "p2", Serial: "XYZ"}.Masked()
	if noPIN.PIN != "" {
		t.Fatalf("expected empty pin to stay empty")
	}
}
