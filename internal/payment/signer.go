package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Signer authenticates requests to the payment verification service:
// HMAC-SHA256 over the unix timestamp under a shared secret, base64-encoded,
// sent as X-Timestamp / X-Signature headers.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the timestamp string and its signature for the given instant.
func (s *Signer) Sign(now time.Time) (timestamp, signature string) {
	timestamp = strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(timestamp))
	signature = base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return timestamp, signature
}
