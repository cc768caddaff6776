// Package signing signs outgoing event webhooks so receivers can check they
// came from this service and are recent.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const (
	HeaderSignature = "X-Aptnotify-Signature"
	HeaderTimestamp = "X-Aptnotify-Timestamp"
)

type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Sign returns the v1 signature of "<unix ts>.<payload>" and the timestamp used.
func (s *Signer) Sign(payload []byte) (signature string, timestamp int64) {
	timestamp = s.now().Unix()
	return s.compute(payload, timestamp), timestamp
}

// Verify checks signature and rejects timestamps further than tolerance from now.
func (s *Signer) Verify(payload []byte, timestamp int64, signature string, tolerance time.Duration) bool {
	if tolerance > 0 {
		age := s.now().Sub(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return false
		}
	}
	expected := s.compute(payload, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *Signer) compute(payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return fmt.Sprintf("v1=%s", hex.EncodeToString(mac.Sum(nil)))
}
