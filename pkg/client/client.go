// Package client implements the real-time synchronization core used by the
// classboard UI: channel addressing, transport lifecycle, envelope routing,
// optimistic sends with reconciliation, and the ordered per-channel message
// log. One Client serves one consumer (a page) and holds at most one live
// transport at a time.
package client

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"classboard/pkg/types"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the server's HTTP base, e.g. "http://localhost:8080".
	BaseURL string
	// UserID identifies the local user to the REST and websocket endpoints.
	UserID int64
	// HTTPClient overrides the REST transport. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// HandshakeTimeout bounds the websocket dial. Default 10s.
	HandshakeTimeout time.Duration
	// ConfirmTimeout bounds how long an optimistic entry may stay
	// unconfirmed before it is rolled back. Default 10s.
	ConfirmTimeout time.Duration

	// DisableReconnect turns off automatic reconnection after an unexpected
	// transport loss. Explicit CloseChannel never triggers reconnection.
	DisableReconnect bool
	// Reconnect backoff tuning; zero values pick the defaults
	// (500ms initial, 10s cap, 1m total budget).
	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration
	ReconnectMaxElapsedTime  time.Duration
}

func (o *Options) withDefaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = 10 * time.Second
	}
	if o.ReconnectInitialInterval <= 0 {
		o.ReconnectInitialInterval = 500 * time.Millisecond
	}
	if o.ReconnectMaxInterval <= 0 {
		o.ReconnectMaxInterval = 10 * time.Second
	}
	if o.ReconnectMaxElapsedTime <= 0 {
		o.ReconnectMaxElapsedTime = time.Minute
	}
}

// Client is the UI-facing facade over the synchronization core.
type Client struct {
	opts   Options
	rest   *restClient
	msgLog *Log
	engine *engine
	router *router
	conn   *connManager

	events    chan transportEvent
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.RWMutex
	self    types.User
	channel Channel
	gen     int
	closed  bool
}

// New creates a Client. The returned client holds no channel; call
// OpenChannel to start streaming.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	if opts.UserID <= 0 {
		return nil, types.ErrInvalidUserID
	}
	opts.withDefaults()

	c := &Client{
		opts:   opts,
		events: make(chan transportEvent, 256),
		errs:   make(chan error, 16),
		done:   make(chan struct{}),
	}
	c.rest = newRESTClient(opts.BaseURL, opts.HTTPClient, opts.UserID)
	c.msgLog = NewLog()
	c.engine = newEngine(c.msgLog, opts.ConfirmTimeout, c.notifyErr)
	c.router = newRouter(c.engine)
	c.conn = newConnManager(opts.HandshakeTimeout, c.events)

	go c.run()
	return c, nil
}

// run is the single goroutine through which every inbound frame reaches the
// log. Transport callbacks never mutate shared state directly; they queue
// events here, so all log mutations are serialized.
func (c *Client) run() {
	for {
		select {
		case ev := <-c.events:
			c.mu.RLock()
			gen, ch, self, closed := c.gen, c.channel, c.self, c.closed
			c.mu.RUnlock()

			if closed || ev.gen != gen || ch.IsZero() {
				continue // stale transport or no active channel
			}
			if ev.frame != nil {
				c.router.dispatch(ch, self, ev.frame)
				continue
			}
			if ev.closed {
				if ev.err != nil {
					c.notifyErr(fmt.Errorf("connection lost on %s: %w", ch.RoutingKey(), ev.err))
				}
				if !c.opts.DisableReconnect {
					go c.reconnect(ch)
				}
			}
		case <-c.done:
			return
		}
	}
}

// OpenChannel switches the client to a logical conversation. Any prior
// transport is closed first; the new channel's history is loaded before live
// frames are applied, so the log starts as exactly the history sequence.
// A handshake failure leaves the client disconnected (IsConnected false)
// until the next OpenChannel call.
func (c *Client) OpenChannel(ctx context.Context, ch Channel) error {
	if ch.IsZero() {
		return ErrNoChannel
	}
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClientClosed
	}

	// Close the prior transport before anything else: at most one live
	// transport per consumer.
	c.detach()

	self, err := c.identity(ctx)
	if err != nil {
		return fmt.Errorf("resolving identity: %w", err)
	}

	history, err := c.fetchHistory(ctx, ch, self)
	if err != nil {
		return fmt.Errorf("loading history for %s: %w", ch.RoutingKey(), err)
	}

	addr, err := ch.Address(c.opts.BaseURL, self)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.msgLog.Replace(ch, history)
	c.channel = ch
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if err := c.conn.open(ctx, addr, gen); err != nil {
		return fmt.Errorf("opening transport for %s: %w", ch.RoutingKey(), err)
	}
	log.Printf("client: channel %s open", ch.RoutingKey())
	return nil
}

// CloseChannel tears down the active transport and forgets the channel.
// Idempotent: closing with no channel open is a no-op.
func (c *Client) CloseChannel() {
	c.detach()
}

// Close shuts the client down entirely. The client cannot be reused.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.detach()
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// detach closes the current transport and cancels pending sends for the
// channel being left. Bumping the generation first makes every event from
// the old transport stale.
func (c *Client) detach() {
	c.mu.Lock()
	old := c.channel
	c.channel = Channel{}
	c.gen++
	c.mu.Unlock()

	c.conn.close()
	if !old.IsZero() {
		c.engine.dropChannel(old)
	}
}

// SendOptimistic authors a message on the active channel: a question on a
// class channel, a direct message on a direct channel. The provisional entry
// is visible in the log before this call returns; the authoritative write
// happens asynchronously for questions and over the transport for direct
// messages. The returned ID is the provisional identity.
func (c *Client) SendOptimistic(ctx context.Context, content string) (string, error) {
	if err := types.ValidateContent(content); err != nil {
		return "", err
	}
	ch, self, err := c.active()
	if err != nil {
		return "", err
	}

	if ch.IsClass() {
		localID := c.engine.stage(ch, provisionalQuestion(ch.ClassID(), content, self), content)
		go func() {
			if _, err := c.rest.CreateQuestion(ctx, ch.ClassID(), content); err != nil {
				c.engine.fail(localID, err)
			}
			// Reconciliation happens via the broadcast frame, not the
			// response body.
		}()
		return localID, nil
	}

	localID := c.engine.stage(ch, provisionalMessage(ch.Counterpart(), content, self), content)
	if err := c.conn.send(types.ChatSend{ReceiverID: ch.Counterpart(), Content: content}); err != nil {
		c.engine.fail(localID, err)
		return "", err
	}
	return localID, nil
}

// SendAnswer authors an answer to a question on the active class channel.
func (c *Client) SendAnswer(ctx context.Context, questionID int64, content string) (string, error) {
	if err := types.ValidateContent(content); err != nil {
		return "", err
	}
	ch, self, err := c.active()
	if err != nil {
		return "", err
	}
	if !ch.IsClass() {
		return "", ErrWrongChannel
	}

	localID := c.engine.stage(ch, provisionalAnswer(questionID, content, self), content)
	go func() {
		if _, err := c.rest.CreateAnswer(ctx, questionID, content); err != nil {
			c.engine.fail(localID, err)
		}
	}()
	return localID, nil
}

// Entries returns a snapshot of the active channel's ordered log.
func (c *Client) Entries() []Entry {
	return c.msgLog.Entries()
}

// IsConnected reports whether the transport is open. Connectivity failures
// are surfaced here, never as fatal errors.
func (c *Client) IsConnected() bool {
	return c.conn.State() == Open
}

// State returns the transport's lifecycle state.
func (c *Client) State() State {
	return c.conn.State()
}

// ActiveChannel returns the channel currently streamed, zero when none.
func (c *Client) ActiveChannel() Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Self returns the resolved local user identity (zero until first use).
func (c *Client) Self() types.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

// Errs delivers transient failures: lost connectivity, failed or timed-out
// sends. Suitable for a toast surface. Never delivers fatal errors.
func (c *Client) Errs() <-chan error {
	return c.errs
}

// Conversations lists the users the local user has direct-message threads
// with, for the chat sidebar.
func (c *Client) Conversations(ctx context.Context) ([]*types.User, error) {
	return c.rest.Conversations(ctx)
}

// identity resolves and caches the local user via the user-session
// collaborator.
func (c *Client) identity(ctx context.Context) (types.User, error) {
	c.mu.RLock()
	self := c.self
	c.mu.RUnlock()
	if self.ID != 0 {
		return self, nil
	}

	u, err := c.rest.CurrentUser(ctx)
	if err != nil {
		return types.User{}, err
	}
	c.mu.Lock()
	c.self = *u
	self = c.self
	c.mu.Unlock()
	return self, nil
}

// fetchHistory loads the channel's prior messages through the REST
// collaborator, in the order the server returns them.
func (c *Client) fetchHistory(ctx context.Context, ch Channel, self types.User) ([]Entry, error) {
	if ch.IsClass() {
		questions, err := c.rest.Questions(ctx, ch.ClassID())
		if err != nil {
			return nil, err
		}
		entries := make([]Entry, 0, len(questions))
		for _, q := range questions {
			if q.Student == nil {
				q.Student = &types.User{FullName: "Unknown", Role: types.RoleStudent}
			}
			if q.Answers == nil {
				q.Answers = []types.Answer{}
			}
			entries = append(entries, Entry{Kind: types.KindNewQuestion, Question: q})
		}
		return entries, nil
	}

	messages, err := c.rest.Messages(ctx, ch.Counterpart())
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, Entry{Kind: types.KindNewMessage, Message: m})
	}
	return entries, nil
}

// active snapshots the current channel and identity for a send.
func (c *Client) active() (Channel, types.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return Channel{}, types.User{}, ErrClientClosed
	}
	if c.channel.IsZero() {
		return Channel{}, types.User{}, ErrNoChannel
	}
	return c.channel, c.self, nil
}

// reconnect re-establishes a transport after an unexpected close, with
// bounded exponential backoff. It gives up silently if the consumer has
// moved to another channel or closed the client in the meantime.
func (c *Client) reconnect(ch Channel) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.ReconnectInitialInterval
	bo.MaxInterval = c.opts.ReconnectMaxInterval
	bo.MaxElapsedTime = c.opts.ReconnectMaxElapsedTime

	attempt := func() error {
		c.mu.Lock()
		if c.closed || !c.channel.Equal(ch) {
			c.mu.Unlock()
			return backoff.Permanent(ErrNoChannel)
		}
		c.gen++
		gen := c.gen
		self := c.self
		c.mu.Unlock()

		addr, err := ch.Address(c.opts.BaseURL, self)
		if err != nil {
			return backoff.Permanent(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
		defer cancel()
		return c.conn.open(ctx, addr, gen)
	}

	if err := backoff.Retry(attempt, bo); err != nil {
		if err != ErrNoChannel {
			c.notifyErr(fmt.Errorf("reconnect to %s gave up: %w", ch.RoutingKey(), err))
		}
		return
	}
	log.Printf("client: reconnected to %s", ch.RoutingKey())
}

// notifyErr queues a transient failure for the UI, dropping it if nobody is
// listening. Failures are handled locally; nothing escalates to a crash.
func (c *Client) notifyErr(err error) {
	select {
	case c.errs <- err:
	default:
		log.Printf("client: %v", err)
	}
}
