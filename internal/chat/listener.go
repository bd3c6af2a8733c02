package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/streampulse/backend/internal/models"
)

const (
	maxContentLen    = 500
	maxReconnectWait = 60 * time.Second
	flushInterval    = 15 * time.Second
	readDeadline     = 6 * time.Minute
)

// Broadcaster pushes events to connected dashboards.
type Broadcaster interface {
	Broadcast(accountID uuid.UUID, event string, payload interface{})
}

// SampleStore persists sampled raw chat messages.
type SampleStore interface {
	AppendChatMessageSample(ctx context.Context, s *models.ChatMessageSample) error
}

// TokenSource returns a currently-valid user access token for the IRC
// connection.
type TokenSource func(ctx context.Context) (string, error)

// Listener ingests one channel's chat over the IRC websocket gateway while a
// session is live. Every message counts toward the activity buckets; a fixed
// fraction of non-bot messages is additionally persisted raw.
type Listener struct {
	account    *models.Account
	session    *models.Session
	gatewayURL string
	tokens     TokenSource
	buckets    *bucketizer
	samples    SampleStore
	sampleRate int
	logger     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	seen   uint64
}

// NewListener creates a chat listener for one account's live session.
func NewListener(account *models.Account, session *models.Session, gatewayURL string, tokens TokenSource, bucketStore BucketStore, samples SampleStore, hub Broadcaster, sampleRate int, logger *zap.Logger) *Listener {
	if sampleRate <= 0 {
		sampleRate = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		account:    account,
		session:    session,
		gatewayURL: gatewayURL,
		tokens:     tokens,
		buckets:    newBucketizer(account.ID, session.ID, bucketStore, hub, logger),
		samples:    samples,
		sampleRate: sampleRate,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start begins the connect-and-read loop. Call Stop to release resources.
func (l *Listener) Start() {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.mu.Unlock()

	go l.run(ctx)
	l.logger.Info("chat listener started",
		zap.String("account_id", l.account.ID.String()),
		zap.String("channel", l.account.Login))
}

// Stop disconnects, waits for the loop to exit and flushes the open bucket.
// The final partial window is written with a short background context so it
// survives caller cancellation.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.cancel == nil {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	cancel()
	<-l.done

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	l.buckets.Close(ctx)
	l.logger.Info("chat listener stopped", zap.String("account_id", l.account.ID.String()))
}

// run reconnects with exponential backoff until the context is cancelled.
func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := l.runOnce(ctx)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		l.logger.Warn("chat connection lost",
			zap.Error(err),
			zap.String("channel", l.account.Login),
			zap.Duration("retry_in", backoff))
		reconnects.Inc()
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if backoff < maxReconnectWait {
			backoff *= 2
			if backoff > maxReconnectWait {
				backoff = maxReconnectWait
			}
		}
	}
}

func (l *Listener) runOnce(ctx context.Context) error {
	token, err := l.tokens(ctx)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, l.gatewayURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock the reader when the context is cancelled.
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-connDone:
		}
	}()

	send := func(line string) error {
		return conn.WriteMessage(websocket.TextMessage, []byte(line+"\r\n"))
	}
	if err := send("PASS oauth:" + token); err != nil {
		return err
	}
	if err := send("NICK " + l.account.Login); err != nil {
		return err
	}
	if err := send("CAP REQ :twitch.tv/tags twitch.tv/commands"); err != nil {
		return err
	}
	if err := send("JOIN #" + l.account.Login); err != nil {
		return err
	}
	l.logger.Info("joined chat", zap.String("channel", l.account.Login))

	flush := time.NewTicker(flushInterval)
	defer flush.Stop()
	go func() {
		for {
			select {
			case <-connDone:
				return
			case <-flush.C:
				l.buckets.FlushBefore(ctx, time.Now())
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return err
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		for _, line := range strings.Split(string(payload), "\r\n") {
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "PING ") {
				if err := send("PONG " + strings.TrimPrefix(line, "PING ")); err != nil {
					return err
				}
				continue
			}
			if strings.Contains(line, " RECONNECT") {
				return errors.New("server requested reconnect")
			}
			if authFailure(line) {
				return errors.New("chat authentication failed")
			}
			if msg, ok := parsePrivmsg(line, l.account.Login); ok {
				l.handleMessage(ctx, msg)
			}
		}
	}
}

func (l *Listener) handleMessage(ctx context.Context, msg privmsg) {
	messagesSeen.Inc()
	l.buckets.Observe(ctx, msg.At)

	if IsBot(msg.Username) {
		return
	}
	l.mu.Lock()
	l.seen++
	sample := l.seen%uint64(l.sampleRate) == 0
	l.mu.Unlock()
	if !sample {
		return
	}

	content := msg.Text
	if len(content) > maxContentLen {
		content = content[:maxContentLen]
	}
	c := Classify(content)
	s := &models.ChatMessageSample{
		SessionID: l.session.ID,
		Username:  msg.Username,
		Content:   content,
		EmoteOnly: c.EmoteOnly,
		Sentiment: c.Sentiment,
		SentAt:    msg.At,
	}
	if err := l.samples.AppendChatMessageSample(ctx, s); err != nil {
		l.logger.Warn("persist chat sample failed", zap.Error(err), zap.String("session_id", l.session.ID.String()))
		return
	}
	messagesSampled.Inc()
}

type privmsg struct {
	Username string
	Text     string
	At       time.Time
}

// parsePrivmsg extracts sender, text and timestamp from a tagged IRC
// PRIVMSG line for the given channel. Anything else returns ok=false.
func parsePrivmsg(line, channel string) (privmsg, bool) {
	rest := line
	tags := map[string]string{}
	if strings.HasPrefix(rest, "@") {
		idx := strings.Index(rest, " ")
		if idx == -1 {
			return privmsg{}, false
		}
		for _, kv := range strings.Split(rest[1:idx], ";") {
			if k, v, found := strings.Cut(kv, "="); found {
				tags[k] = v
			}
		}
		rest = strings.TrimSpace(rest[idx+1:])
	}
	if !strings.HasPrefix(rest, ":") {
		return privmsg{}, false
	}
	rest = rest[1:]
	prefix, rest, found := strings.Cut(rest, " ")
	if !found {
		return privmsg{}, false
	}
	if !strings.HasPrefix(strings.ToUpper(rest), "PRIVMSG #") {
		return privmsg{}, false
	}
	rest = rest[len("PRIVMSG #"):]
	chanName, rest, found := strings.Cut(rest, " ")
	if !found || !strings.EqualFold(chanName, channel) {
		return privmsg{}, false
	}
	if !strings.HasPrefix(rest, ":") {
		return privmsg{}, false
	}
	text := rest[1:]

	user := prefix
	if idx := strings.Index(user, "!"); idx != -1 {
		user = user[:idx]
	}
	if display := tags["display-name"]; display != "" {
		user = display
	}

	at := time.Now().UTC()
	if tsStr := tags["tmi-sent-ts"]; tsStr != "" {
		if ms, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			at = time.Unix(0, ms*int64(time.Millisecond)).UTC()
		}
	}
	return privmsg{Username: user, Text: text, At: at}, true
}

func authFailure(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "authentication failed") ||
		strings.Contains(lower, "improperly formatted auth")
}
