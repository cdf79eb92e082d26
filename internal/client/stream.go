package client

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts = 5
	defaultRetryDelay  = time.Second
)

// SubscriptionHandle identifies one event subscription.
type SubscriptionHandle = uuid.UUID

type subscription struct {
	event string
	fn    func(data []byte)
}

// StreamConfig configures the push channel consumer.
type StreamConfig struct {
	// URL of the server-sent event endpoint.
	URL string
	// Header is sent on every connection attempt and carries the session
	// credential. A connection without a valid credential is rejected at
	// handshake time.
	Header http.Header
	// MaxAttempts bounds consecutive failed connection attempts before the
	// stream gives up. Defaults to 5. The counter resets after a
	// successful connection.
	MaxAttempts int
	// RetryDelay is the fixed delay between attempts. Defaults to 1s.
	RetryDelay time.Duration
	// OnConnect runs after every successful (re)connection. Missed events
	// are not replayed, so the owner re-runs its baseline queries here.
	OnConnect func()
	// OnDisconnect runs once when the stream gives up reconnecting.
	OnDisconnect func()
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Stream consumes the server's push channel and dispatches events to
// handle-based subscriptions.
type Stream struct {
	cfg StreamConfig

	mu   sync.Mutex
	subs map[SubscriptionHandle]subscription

	connected atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewStream creates a Stream. Call Start to connect.
func NewStream(cfg StreamConfig) *Stream {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Stream{
		cfg:  cfg,
		subs: make(map[SubscriptionHandle]subscription),
		done: make(chan struct{}),
	}
}

// Subscribe registers a handler for one event kind and returns a handle for
// releasing it.
func (s *Stream) Subscribe(event string, fn func(data []byte)) SubscriptionHandle {
	handle := uuid.New()
	s.mu.Lock()
	s.subs[handle] = subscription{event: event, fn: fn}
	s.mu.Unlock()
	return handle
}

// Unsubscribe releases a subscription. Unknown handles are ignored.
func (s *Stream) Unsubscribe(handle SubscriptionHandle) {
	s.mu.Lock()
	delete(s.subs, handle)
	s.mu.Unlock()
}

// Connected reports whether the stream currently holds a live connection.
func (s *Stream) Connected() bool {
	return s.connected.Load()
}

// Start connects in the background. The stream runs until Close is called,
// the context is cancelled, or the reconnection budget is exhausted.
func (s *Stream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Close tears the connection down and waits for the run loop to exit.
func (s *Stream) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	defer s.connected.Store(false)

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.consume(ctx); err != nil {
			attempts++
			if attempts >= s.cfg.MaxAttempts {
				log.WithError(err).Warn("stream giving up after repeated connection failures")
				if s.cfg.OnDisconnect != nil {
					s.cfg.OnDisconnect()
				}
				return
			}
		} else {
			// The connection was established and later dropped; start a
			// fresh attempt budget.
			attempts = 0
		}

		// The fixed delay applies before every redial, dropped
		// connections included.
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RetryDelay):
		}
	}
}

// errStatus signals a rejected handshake.
type errStatus struct{ status string }

func (e *errStatus) Error() string { return "stream handshake failed: " + e.status }

// consume opens one connection and reads frames until it drops. A nil return
// means the connection was established and then lost; an error means the
// attempt itself failed.
func (s *Stream) consume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	for k, vs := range s.cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &errStatus{status: resp.Status}
	}

	s.connected.Store(true)
	defer s.connected.Store(false)
	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect()
	}

	var event string
	var data []byte
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" && data != nil {
				s.dispatch(event, data)
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
			// heartbeat comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")...)
		}
	}
	return nil
}

func (s *Stream) dispatch(event string, data []byte) {
	s.mu.Lock()
	handlers := make([]func([]byte), 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.event == event {
			handlers = append(handlers, sub.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(data)
	}
}
