package eventsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	secret := "s3cret"
	body := []byte(`{"subscription":{"type":"stream.online"}}`)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ts := now.Format(time.RFC3339Nano)
	sig := ComputeSignature(secret, "msg-1", ts, body)

	t.Run("valid signature passes", func(t *testing.T) {
		assert.True(t, VerifySignature(secret, "msg-1", ts, sig, body, now))
	})

	t.Run("tampered body fails", func(t *testing.T) {
		tampered := append([]byte(nil), body...)
		tampered[0] ^= 0x01
		assert.False(t, VerifySignature(secret, "msg-1", ts, sig, tampered, now))
	})

	t.Run("tampered signature fails", func(t *testing.T) {
		bad := []byte(sig)
		bad[len(bad)-1] ^= 0x01
		assert.False(t, VerifySignature(secret, "msg-1", ts, string(bad), body, now))
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		assert.False(t, VerifySignature("other", "msg-1", ts, sig, body, now))
	})

	t.Run("wrong message id fails", func(t *testing.T) {
		assert.False(t, VerifySignature(secret, "msg-2", ts, sig, body, now))
	})

	t.Run("stale timestamp fails even with valid hmac", func(t *testing.T) {
		assert.False(t, VerifySignature(secret, "msg-1", ts, sig, body, now.Add(11*time.Minute)))
	})

	t.Run("future timestamp fails symmetrically", func(t *testing.T) {
		assert.False(t, VerifySignature(secret, "msg-1", ts, sig, body, now.Add(-11*time.Minute)))
	})

	t.Run("just inside the window passes", func(t *testing.T) {
		assert.True(t, VerifySignature(secret, "msg-1", ts, sig, body, now.Add(9*time.Minute)))
	})

	t.Run("unparseable timestamp fails", func(t *testing.T) {
		assert.False(t, VerifySignature(secret, "msg-1", "yesterday", sig, body, now))
	})
}
