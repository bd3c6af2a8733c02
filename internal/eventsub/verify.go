package eventsub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Webhook notification headers set by the platform.
const (
	HeaderMessageID        = "Twitch-Eventsub-Message-Id"
	HeaderMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	HeaderMessageSignature = "Twitch-Eventsub-Message-Signature"
	HeaderMessageType      = "Twitch-Eventsub-Message-Type"
)

// Message types carried in HeaderMessageType.
const (
	MessageTypeVerification = "webhook_callback_verification"
	MessageTypeRevocation   = "revocation"
	MessageTypeNotification = "notification"
)

// maxTimestampSkew rejects notifications older (or newer) than this,
// bounding replay of captured requests.
const maxTimestampSkew = 10 * time.Minute

// ComputeSignature returns the expected signature header value for a
// message: "sha256=" + hex(HMAC-SHA256(secret, id + timestamp + body)).
func ComputeSignature(secret, messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the timestamp window and the HMAC signature of a
// webhook request. Comparison is constant-time; any parse failure or length
// mismatch yields false.
func VerifySignature(secret, messageID, timestamp, signature string, body []byte, now time.Time) bool {
	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return false
	}
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxTimestampSkew {
		return false
	}
	expected := ComputeSignature(secret, messageID, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
