package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/streampulse/backend/internal/models"
)

// Stream is one live broadcast as reported by the platform.
type Stream struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	UserLogin   string `json:"user_login"`
	Title       string `json:"title"`
	GameName    string `json:"game_name"`
	ViewerCount int    `json:"viewer_count"`
}

// Subscription is one push-notification subscription as reported by the
// platform's list endpoint, which is treated as ground truth.
type Subscription struct {
	ID            string
	Type          string
	Status        string
	BroadcasterID string
	Callback      string
	ExpiresAt     time.Time
}

// Client calls the platform REST API. All calls go through the retry
// wrapper and a shared rate limiter.
type Client struct {
	clientID string
	tokens   *TokenProvider
	helixURL string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewClient creates a platform API client.
func NewClient(clientID string, tokens *TokenProvider, helixURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		clientID: clientID,
		tokens:   tokens,
		helixURL: strings.TrimRight(helixURL, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
		// Helix allows 800 points/min per client id; stay well under it.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		logger:  logger,
	}
}

// StreamByUserID returns the live stream for a user, or nil when offline.
func (c *Client) StreamByUserID(ctx context.Context, userID string) (*Stream, error) {
	var out struct {
		Data []Stream `json:"data"`
	}
	q := url.Values{"user_id": {userID}}
	if err := c.get(ctx, "/streams", q, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	return &out.Data[0], nil
}

// ViewerCount returns the current audience size for a live user. Offline
// users report zero viewers.
func (c *Client) ViewerCount(ctx context.Context, userID string) (int, error) {
	s, err := c.StreamByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s == nil {
		return 0, nil
	}
	return s.ViewerCount, nil
}

type subscriptionWire struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Condition struct {
		BroadcasterUserID   string `json:"broadcaster_user_id"`
		ToBroadcasterUserID string `json:"to_broadcaster_user_id"`
	} `json:"condition"`
	Transport struct {
		Callback string `json:"callback"`
	} `json:"transport"`
	ExpiresAt string `json:"expires_at"`
}

func (w subscriptionWire) toSubscription() *Subscription {
	s := &Subscription{
		ID:            w.ID,
		Type:          w.Type,
		Status:        w.Status,
		BroadcasterID: w.Condition.BroadcasterUserID,
		Callback:      w.Transport.Callback,
	}
	if s.BroadcasterID == "" {
		s.BroadcasterID = w.Condition.ToBroadcasterUserID
	}
	if w.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, w.ExpiresAt); err == nil {
			s.ExpiresAt = t
		}
	}
	return s
}

// ListSubscriptions returns every subscription registered for this client
// id, following pagination cursors.
func (c *Client) ListSubscriptions(ctx context.Context) ([]*Subscription, error) {
	var subs []*Subscription
	cursor := ""
	for {
		var out struct {
			Data       []subscriptionWire `json:"data"`
			Pagination struct {
				Cursor string `json:"cursor"`
			} `json:"pagination"`
		}
		q := url.Values{}
		if cursor != "" {
			q.Set("after", cursor)
		}
		if err := c.get(ctx, "/eventsub/subscriptions", q, &out); err != nil {
			return nil, err
		}
		for _, w := range out.Data {
			subs = append(subs, w.toSubscription())
		}
		cursor = out.Pagination.Cursor
		if cursor == "" {
			return subs, nil
		}
	}
}

// CreateSubscription registers a webhook subscription of the given type with
// the supplied condition.
func (c *Client) CreateSubscription(ctx context.Context, subType string, condition map[string]string, callback, secret string) error {
	body := map[string]interface{}{
		"type":      subType,
		"version":   "1",
		"condition": condition,
		"transport": map[string]string{
			"method":   "webhook",
			"callback": callback,
			"secret":   secret,
		},
	}
	return c.send(ctx, http.MethodPost, "/eventsub/subscriptions", nil, body, nil)
}

// DeleteSubscription removes a subscription by id.
func (c *Client) DeleteSubscription(ctx context.Context, id string) error {
	q := url.Values{"id": {id}}
	return c.send(ctx, http.MethodDelete, "/eventsub/subscriptions", q, nil, nil)
}

// CreateClip creates a clip on the account's channel using its user token.
// Returns the new clip id.
func (c *Client) CreateClip(ctx context.Context, account *models.Account) (string, error) {
	token, err := c.tokens.UserToken(ctx, account)
	if err != nil {
		return "", err
	}
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	q := url.Values{"broadcaster_id": {account.TwitchUserID}}
	if err := c.sendWithToken(ctx, http.MethodPost, "/clips", q, nil, &out, token); err != nil {
		return "", err
	}
	if len(out.Data) == 0 {
		return "", fmt.Errorf("twitch: clip response has no data")
	}
	return out.Data[0].ID, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	return c.send(ctx, http.MethodGet, path, q, nil, out)
}

func (c *Client) send(ctx context.Context, method, path string, q url.Values, body, out interface{}) error {
	token, err := c.tokens.AppToken(ctx)
	if err != nil {
		return err
	}
	return c.sendWithToken(ctx, method, path, q, body, out, token)
}

func (c *Client) sendWithToken(ctx context.Context, method, path string, q url.Values, body, out interface{}, token string) error {
	return doWithRetry(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		u := c.helixURL + path
		if len(q) > 0 {
			u += "?" + q.Encode()
		}
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("marshal request: %w", err)
			}
			reader = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Client-Id", c.clientID)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode/100 != 2 {
			return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		}
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	})
}
