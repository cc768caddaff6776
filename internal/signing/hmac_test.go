package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignVerify(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	s := NewSigner("whsec")
	s.now = func() time.Time { return now }

	payload := []byte(`{"type":"dispatch.completed"}`)
	sig, ts := s.Sign(payload)

	assert.Equal(t, now.Unix(), ts)
	assert.Contains(t, sig, "v1=")
	assert.True(t, s.Verify(payload, ts, sig, time.Minute))
	assert.False(t, s.Verify([]byte(`{}`), ts, sig, time.Minute))
	assert.False(t, NewSigner("other").Verify(payload, ts, sig, 0))

	s.now = func() time.Time { return now.Add(10 * time.Minute) }
	assert.False(t, s.Verify(payload, ts, sig, time.Minute))
	assert.True(t, s.Verify(payload, ts, sig, 0))
}
