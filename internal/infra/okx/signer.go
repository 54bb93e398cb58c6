package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// Signer handles OKX v5 API authentication signatures
type Signer struct {
	apiKey     string
	secretKey  string
	passphrase string
	simulated  bool
	now        func() time.Time
}

// NewSigner creates a new Signer instance. simulated routes requests to
// the exchange's demo trading environment.
func NewSigner(apiKey, secretKey, passphrase string, simulated bool) *Signer {
	return &Signer{
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		simulated:  simulated,
		now:        time.Now,
	}
}

// GenerateHeaders creates the necessary headers for a request
// method: GET, POST, etc.
// path: /api/v5/account/positions including any query string
// body: json string (empty if none)
func (s *Signer) GenerateHeaders(method, path, body string) map[string]string {
	// OKX v5 requirement: ISO8601 UTC timestamp with millisecond precision
	timestamp := s.now().UTC().Format("2006-01-02T15:04:05.000Z")

	// Prehash format: timestamp + method + requestPath + body
	payload := timestamp + method + path + body
	sign := computeHmacSha256(payload, s.secretKey)

	headers := map[string]string{
		"OK-ACCESS-KEY":        s.apiKey,
		"OK-ACCESS-SIGN":       sign,
		"OK-ACCESS-TIMESTAMP":  timestamp,
		"OK-ACCESS-PASSPHRASE": s.passphrase,
		"Content-Type":         "application/json",
	}
	if s.simulated {
		headers["x-simulated-trading"] = "1"
	}
	return headers
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
