// Package tdjson implements the relay gateway over TDLib's JSON interface,
// reached through a TCP bridge speaking newline-delimited JSON frames.
// Requests are correlated with responses via the "@extra" field.
package tdjson

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/searchbot/core/logger"
	"github.com/m3rciful/searchbot/relay"
	"log/slog"
)

const (
	defaultDialTimeout    = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second
	// maxSearchLimit caps per-channel work regardless of what the caller asks for.
	maxSearchLimit = 99
	// maxFrameSize bounds a single JSON frame from the bridge.
	maxFrameSize = 4 << 20
)

// ErrClosed is returned for requests issued after the client is closed.
var ErrClosed = errors.New("tdjson: client closed")

// Options configures Dial.
type Options struct {
	Addr               string
	APIID              int32
	APIHash            string
	PhoneNumber        string
	ApplicationVersion string
	DatabaseDir        string
	DialTimeout        time.Duration
	RequestTimeout     time.Duration
}

// Client is the authenticated relay session. It implements relay.Gateway.
type Client struct {
	opts Options
	conn net.Conn

	wmu sync.Mutex // guards writes to conn

	pmu     sync.Mutex
	pending map[string]chan json.RawMessage

	auth *relay.AuthFlow

	closeOnce sync.Once
	closed    chan struct{}
}

var _ relay.Gateway = (*Client)(nil)

// Dial connects to the bridge and starts the read loop. The returned client
// is not authorized yet; callers must WaitReady before issuing gateway calls.
func Dial(ctx context.Context, opts Options, prompter relay.CredentialPrompter) (*Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("tdjson: dial %s: %w", opts.Addr, err)
	}

	c := &Client{
		opts:    opts,
		conn:    conn,
		pending: make(map[string]chan json.RawMessage),
		closed:  make(chan struct{}),
	}
	c.auth = relay.NewAuthFlow(opts.PhoneNumber, authTransport{c}, prompter)

	go c.readLoop()

	logger.Info(ctx, "relay", "session.dial",
		slog.String("status", "ok"),
		slog.String("addr", opts.Addr),
	)
	return c, nil
}

// WaitReady blocks until the login flow completes or ctx is done.
func (c *Client) WaitReady(ctx context.Context) error {
	return c.auth.WaitReady(ctx)
}

// Ready reports whether the session finished authentication.
func (c *Client) Ready() bool {
	return c.auth.IsReady()
}

// AuthState exposes the current login flow state for diagnostics.
func (c *Client) AuthState() relay.AuthState {
	return c.auth.State()
}

// Close tears down the connection and fails all pending requests.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		c.pmu.Lock()
		for extra, ch := range c.pending {
			close(ch)
			delete(c.pending, extra)
		}
		c.pmu.Unlock()
	})
	return err
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raw := make(json.RawMessage, len(line))
		copy(raw, line)

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Warn(context.Background(), "relay", "frame.malformed",
				slog.String("err", err.Error()),
			)
			continue
		}

		if env.Extra != "" {
			c.deliver(env.Extra, raw)
			continue
		}
		// Auth steps issue nested requests whose responses arrive on this
		// loop, so updates are handled off the read goroutine.
		go c.handleUpdate(env.Type, raw)
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-c.closed:
		default:
			logger.Error(context.Background(), "relay", "session.read_failed",
				slog.String("err", err.Error()),
			)
		}
	}
	_ = c.Close()
}

func (c *Client) deliver(extra string, raw json.RawMessage) {
	c.pmu.Lock()
	ch, ok := c.pending[extra]
	if ok {
		delete(c.pending, extra)
	}
	c.pmu.Unlock()
	if ok {
		ch <- raw
		close(ch)
	}
}

func (c *Client) handleUpdate(kind string, raw json.RawMessage) {
	ctx := context.Background()
	switch kind {
	case "updateAuthorizationState":
		var upd authorizationStateUpdate
		if err := json.Unmarshal(raw, &upd); err != nil {
			logger.Warn(ctx, "relay", "auth.update_malformed", slog.String("err", err.Error()))
			return
		}
		state := upd.AuthorizationState.Type
		if state == "authorizationStateWaitTdlibParameters" {
			if err := c.sendTdlibParameters(ctx); err != nil {
				logger.Error(ctx, "relay", "auth.parameters_failed", slog.String("err", err.Error()))
			}
			return
		}
		if err := c.auth.Apply(ctx, state); err != nil {
			logger.Error(ctx, "relay", "auth.step_failed",
				slog.String("state", state),
				slog.String("err", err.Error()),
			)
		}
	case "updateConnectionState":
		logger.Debug(ctx, "relay", "connection.state")
	}
}

func (c *Client) sendTdlibParameters(ctx context.Context) error {
	_, err := c.invoke(ctx, map[string]any{
		"@type":                "setTdlibParameters",
		"api_id":               c.opts.APIID,
		"api_hash":             c.opts.APIHash,
		"device_model":         "Server",
		"system_language_code": "en",
		"application_version":  c.opts.ApplicationVersion,
		"database_directory":   c.opts.DatabaseDir,
		"files_directory":      c.opts.DatabaseDir,
	})
	return err
}

// invoke writes a request frame and waits for the correlated response.
func (c *Client) invoke(ctx context.Context, payload map[string]any) (json.RawMessage, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}

	extra := uuid.NewString()
	payload["@extra"] = extra

	ch := make(chan json.RawMessage, 1)
	c.pmu.Lock()
	c.pending[extra] = ch
	c.pmu.Unlock()

	abandon := func() {
		c.pmu.Lock()
		delete(c.pending, extra)
		c.pmu.Unlock()
	}

	frame, err := json.Marshal(payload)
	if err != nil {
		abandon()
		return nil, fmt.Errorf("tdjson: marshal request: %w", err)
	}
	frame = append(frame, '\n')

	c.wmu.Lock()
	_, err = c.conn.Write(frame)
	c.wmu.Unlock()
	if err != nil {
		abandon()
		return nil, fmt.Errorf("tdjson: write request: %w", err)
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case raw, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("tdjson: decode response: %w", err)
		}
		if env.Type == "error" {
			var apiErr apiError
			if err := json.Unmarshal(raw, &apiErr); err != nil {
				return nil, fmt.Errorf("tdjson: decode error response: %w", err)
			}
			return nil, &apiErr
		}
		return raw, nil
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("tdjson: request %s timed out", payload["@type"])
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	case <-c.closed:
		abandon()
		return nil, ErrClosed
	}
}

func (c *Client) requireReady() error {
	if !c.auth.IsReady() {
		return relay.ErrNotAuthenticated
	}
	return nil
}

// ResolveChannel resolves a public channel username via searchPublicChat.
func (c *Client) ResolveChannel(ctx context.Context, identifier string) (relay.Channel, error) {
	if err := c.requireReady(); err != nil {
		return relay.Channel{}, err
	}
	raw, err := c.invoke(ctx, map[string]any{
		"@type":    "searchPublicChat",
		"username": identifier,
	})
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return relay.Channel{}, fmt.Errorf("%w: %s", relay.ErrChannelNotFound, identifier)
		}
		return relay.Channel{}, err
	}
	var chat tdChat
	if err := json.Unmarshal(raw, &chat); err != nil {
		return relay.Channel{}, fmt.Errorf("tdjson: decode chat: %w", err)
	}
	return relay.Channel{ID: chat.ID, Title: chat.Title, Username: identifier}, nil
}

// SearchPosts queries channel messages matching query, capped at limit.
func (c *Client) SearchPosts(ctx context.Context, ch relay.Channel, query string, limit int) ([]relay.Post, error) {
	if err := c.requireReady(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	raw, err := c.invoke(ctx, map[string]any{
		"@type":   "searchChatMessages",
		"chat_id": ch.ID,
		"query":   query,
		"limit":   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("tdjson: search in %q: %w", ch.Username, err)
	}
	var found tdFoundMessages
	if err := json.Unmarshal(raw, &found); err != nil {
		return nil, fmt.Errorf("tdjson: decode search result: %w", err)
	}
	posts := make([]relay.Post, 0, len(found.Messages))
	for _, m := range found.Messages {
		posts = append(posts, relay.Post{
			ID:         m.ID,
			ChatID:     m.ChatID,
			Sender:     m.sender(),
			Text:       m.text(),
			CanForward: m.CanBeForwarded,
		})
	}
	return posts, nil
}

// ForwardPost copies a single post into the user's chat.
func (c *Client) ForwardPost(ctx context.Context, post relay.Post, toUserID int64) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	if !post.CanForward {
		return relay.ErrForwardNotAllowed
	}
	_, err := c.invoke(ctx, map[string]any{
		"@type":        "forwardMessages",
		"chat_id":      toUserID,
		"from_chat_id": post.ChatID,
		"message_ids":  []int64{post.ID},
		"send_copy":    true,
	})
	if err != nil {
		return &relay.ForwardError{PostID: post.ID, Sender: post.Sender, Err: err}
	}
	return nil
}

// SendDirect sends a plain text message from the relay account.
func (c *Client) SendDirect(ctx context.Context, toUserID int64, text string) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	_, err := c.invoke(ctx, map[string]any{
		"@type":   "sendMessage",
		"chat_id": toUserID,
		"input_message_content": map[string]any{
			"@type": "inputMessageText",
			"text": map[string]any{
				"@type": "formattedText",
				"text":  text,
			},
		},
	})
	return err
}

// ResolveUserChannel resolves a user's own chat by username.
func (c *Client) ResolveUserChannel(ctx context.Context, username string) (relay.Channel, error) {
	return c.ResolveChannel(ctx, username)
}

// authTransport adapts the client to the login flow transport contract.
type authTransport struct{ c *Client }

func (t authTransport) SendPhoneNumber(ctx context.Context, phone string) error {
	_, err := t.c.invoke(ctx, map[string]any{
		"@type":        "setAuthenticationPhoneNumber",
		"phone_number": phone,
	})
	return err
}

func (t authTransport) CheckCode(ctx context.Context, code string) error {
	_, err := t.c.invoke(ctx, map[string]any{
		"@type": "checkAuthenticationCode",
		"code":  code,
	})
	return err
}

func (t authTransport) CheckPassword(ctx context.Context, password string) error {
	_, err := t.c.invoke(ctx, map[string]any{
		"@type":    "checkAuthenticationPassword",
		"password": password,
	})
	return err
}
