package okx

import (
	"testing"
	"time"
)

func TestSigner_GenerateHeaders(t *testing.T) {
	signer := NewSigner("key", "secret", "pass", false)
	signer.now = func() time.Time {
		return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	}

	headers := signer.GenerateHeaders("GET", "/api/v5/account/positions?instId=BTC-USD-SWAP", "")

	if headers["OK-ACCESS-KEY"] != "key" {
		t.Errorf("Expected OK-ACCESS-KEY to be 'key', got %s", headers["OK-ACCESS-KEY"])
	}
	if headers["OK-ACCESS-PASSPHRASE"] != "pass" {
		t.Errorf("Expected OK-ACCESS-PASSPHRASE to be 'pass', got %s", headers["OK-ACCESS-PASSPHRASE"])
	}
	if headers["OK-ACCESS-TIMESTAMP"] != "2026-08-01T12:00:00.000Z" {
		t.Errorf("Unexpected timestamp %s", headers["OK-ACCESS-TIMESTAMP"])
	}
	if headers["OK-ACCESS-SIGN"] == "" {
		t.Error("OK-ACCESS-SIGN should not be empty")
	}
	if _, ok := headers["x-simulated-trading"]; ok {
		t.Error("live signer must not set the simulated trading header")
	}

	// Same inputs, same timestamp, same signature.
	again := signer.GenerateHeaders("GET", "/api/v5/account/positions?instId=BTC-USD-SWAP", "")
	if headers["OK-ACCESS-SIGN"] != again["OK-ACCESS-SIGN"] {
		t.Error("signature must be deterministic for fixed inputs")
	}

	// Body participates in the prehash.
	withBody := signer.GenerateHeaders("POST", "/api/v5/trade/order", `{"instId":"BTC-USD-SWAP"}`)
	if withBody["OK-ACCESS-SIGN"] == headers["OK-ACCESS-SIGN"] {
		t.Error("different payloads must produce different signatures")
	}
}

func TestSigner_SimulatedTrading(t *testing.T) {
	signer := NewSigner("key", "secret", "pass", true)
	headers := signer.GenerateHeaders("GET", "/api/v5/account/positions", "")
	if headers["x-simulated-trading"] != "1" {
		t.Errorf("Expected x-simulated-trading=1, got %q", headers["x-simulated-trading"])
	}
}

func TestComputeHmacSha256(t *testing.T) {
	// Standard HMAC-SHA256 Test Vector
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	// Base64: 97yD9DBThCSxMpjmqm+xQ+9NWaFJRhdZl0edvC0aPNg=
	expected := "97yD9DBThCSxMpjmqm+xQ+9NWaFJRhdZl0edvC0aPNg="
	result := computeHmacSha256("The quick brown fox jumps over the lazy dog", "key")
	if result != expected {
		t.Errorf("HMAC Mismatch. Expected %s, got %s", expected, result)
	}
}
