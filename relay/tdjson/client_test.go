package tdjson

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/searchbot/relay"
)

type stubPrompter struct{}

func (stubPrompter) Code(context.Context) (string, error)     { return "00000", nil }
func (stubPrompter) Password(context.Context) (string, error) { return "", nil }

// fakeBridge is a scripted bridge endpoint. It accepts one connection,
// pushes onConnect frames, and answers each request by "@type".
type fakeBridge struct {
	t  *testing.T
	ln net.Listener

	onConnect []map[string]any
	respond   map[string]map[string]any
	pushAfter map[string][]map[string]any

	mu       sync.Mutex
	requests []map[string]any
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	b := &fakeBridge{
		t:         t,
		ln:        ln,
		respond:   make(map[string]map[string]any),
		pushAfter: make(map[string][]map[string]any),
	}
	t.Cleanup(func() { _ = ln.Close() })
	return b
}

func (b *fakeBridge) addr() string { return b.ln.Addr().String() }

func (b *fakeBridge) start() {
	go func() {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		enc := json.NewEncoder(conn)
		for _, frame := range b.onConnect {
			_ = enc.Encode(frame)
		}

		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
		for scanner.Scan() {
			var req map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			kind, _ := req["@type"].(string)

			b.mu.Lock()
			b.requests = append(b.requests, req)
			resp := b.respond[kind]
			after := b.pushAfter[kind]
			b.mu.Unlock()

			if resp != nil {
				out := make(map[string]any, len(resp)+1)
				for k, v := range resp {
					out[k] = v
				}
				out["@extra"] = req["@extra"]
				_ = enc.Encode(out)
			}
			for _, frame := range after {
				_ = enc.Encode(frame)
			}
		}
	}()
}

func (b *fakeBridge) requestsOf(kind string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, req := range b.requests {
		if req["@type"] == kind {
			out = append(out, req)
		}
	}
	return out
}

func authUpdate(state string) map[string]any {
	return map[string]any{
		"@type":               "updateAuthorizationState",
		"authorization_state": map[string]any{"@type": state},
	}
}

func dialBridge(t *testing.T, b *fakeBridge) *Client {
	t.Helper()
	b.start()
	client, err := Dial(context.Background(), Options{
		Addr:           b.addr(),
		APIID:          12345,
		APIHash:        "hash",
		PhoneNumber:    "+10000000000",
		RequestTimeout: 2 * time.Second,
	}, stubPrompter{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func waitReady(t *testing.T, client *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.WaitReady(ctx); err != nil {
		t.Fatalf("wait ready: %v", err)
	}
}

func TestClientHandshakeSendsParameters(t *testing.T) {
	b := newFakeBridge(t)
	b.onConnect = []map[string]any{authUpdate("authorizationStateWaitTdlibParameters")}
	b.respond["setTdlibParameters"] = map[string]any{"@type": "ok"}
	b.pushAfter["setTdlibParameters"] = []map[string]any{authUpdate("authorizationStateReady")}

	client := dialBridge(t, b)
	waitReady(t, client)

	reqs := b.requestsOf("setTdlibParameters")
	if len(reqs) != 1 {
		t.Fatalf("setTdlibParameters requests = %d, want 1", len(reqs))
	}
	if got := reqs[0]["api_id"]; got != float64(12345) {
		t.Fatalf("api_id sent = %v, want 12345", got)
	}
	if client.AuthState() != relay.AuthReady {
		t.Fatalf("auth state = %q, want ready", client.AuthState())
	}
}

func TestResolveChannel(t *testing.T) {
	b := newFakeBridge(t)
	b.onConnect = []map[string]any{authUpdate("authorizationStateReady")}
	b.respond["searchPublicChat"] = map[string]any{
		"@type": "chat",
		"id":    float64(-100777),
		"title": "Foo News",
	}

	client := dialBridge(t, b)
	waitReady(t, client)

	ch, err := client.ResolveChannel(context.Background(), "foonews")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ch.ID != -100777 || ch.Title != "Foo News" || ch.Username != "foonews" {
		t.Fatalf("unexpected channel: %+v", ch)
	}
}

func TestResolveChannelNotFound(t *testing.T) {
	b := newFakeBridge(t)
	b.onConnect = []map[string]any{authUpdate("authorizationStateReady")}
	b.respond["searchPublicChat"] = map[string]any{
		"@type":   "error",
		"code":    float64(400),
		"message": "USERNAME_NOT_OCCUPIED",
	}

	client := dialBridge(t, b)
	waitReady(t, client)

	_, err := client.ResolveChannel(context.Background(), "missing")
	if !errors.Is(err, relay.ErrChannelNotFound) {
		t.Fatalf("resolve missing channel = %v, want ErrChannelNotFound", err)
	}
}

func TestSearchPostsCapsLimit(t *testing.T) {
	b := newFakeBridge(t)
	b.onConnect = []map[string]any{authUpdate("authorizationStateReady")}
	b.respond["searchChatMessages"] = map[string]any{
		"@type": "foundChatMessages",
		"messages": []map[string]any{
			{
				"id":               float64(11),
				"chat_id":          float64(-100777),
				"can_be_forwarded": true,
				"content": map[string]any{
					"@type": "messageText",
					"text":  map[string]any{"@type": "formattedText", "text": "hello world"},
				},
			},
			{
				"id":               float64(12),
				"chat_id":          float64(-100777),
				"can_be_forwarded": false,
				"content": map[string]any{
					"@type":   "messagePhoto",
					"caption": map[string]any{"@type": "formattedText", "text": "photo caption"},
				},
			},
		},
	}

	client := dialBridge(t, b)
	waitReady(t, client)

	posts, err := client.SearchPosts(context.Background(), relay.Channel{ID: -100777, Username: "foonews"}, "hello", 5000)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(posts))
	}
	if posts[0].Text != "hello world" || !posts[0].CanForward {
		t.Fatalf("unexpected first post: %+v", posts[0])
	}
	if posts[1].Text != "photo caption" || posts[1].CanForward {
		t.Fatalf("unexpected second post: %+v", posts[1])
	}

	reqs := b.requestsOf("searchChatMessages")
	if len(reqs) != 1 {
		t.Fatalf("searchChatMessages requests = %d, want 1", len(reqs))
	}
	if got := reqs[0]["limit"]; got != float64(maxSearchLimit) {
		t.Fatalf("limit sent = %v, want %d", got, maxSearchLimit)
	}
}

func TestForwardPost(t *testing.T) {
	b := newFakeBridge(t)
	b.onConnect = []map[string]any{authUpdate("authorizationStateReady")}
	b.respond["forwardMessages"] = map[string]any{"@type": "messages"}

	client := dialBridge(t, b)
	waitReady(t, client)

	post := relay.Post{ID: 11, ChatID: -100777, CanForward: true}
	if err := client.ForwardPost(context.Background(), post, 42); err != nil {
		t.Fatalf("forward: %v", err)
	}

	reqs := b.requestsOf("forwardMessages")
	if len(reqs) != 1 {
		t.Fatalf("forwardMessages requests = %d, want 1", len(reqs))
	}
	if got := reqs[0]["send_copy"]; got != true {
		t.Fatalf("send_copy = %v, want true", got)
	}
	if got := reqs[0]["chat_id"]; got != float64(42) {
		t.Fatalf("chat_id = %v, want 42", got)
	}
}

func TestForwardPostNotAllowed(t *testing.T) {
	b := newFakeBridge(t)
	b.onConnect = []map[string]any{authUpdate("authorizationStateReady")}

	client := dialBridge(t, b)
	waitReady(t, client)

	post := relay.Post{ID: 11, ChatID: -100777, CanForward: false}
	err := client.ForwardPost(context.Background(), post, 42)
	if !errors.Is(err, relay.ErrForwardNotAllowed) {
		t.Fatalf("forward protected post = %v, want ErrForwardNotAllowed", err)
	}
}

func TestForwardPostTransportError(t *testing.T) {
	b := newFakeBridge(t)
	b.onConnect = []map[string]any{authUpdate("authorizationStateReady")}
	b.respond["forwardMessages"] = map[string]any{
		"@type":   "error",
		"code":    float64(403),
		"message": "CHAT_FORWARDS_RESTRICTED",
	}

	client := dialBridge(t, b)
	waitReady(t, client)

	post := relay.Post{ID: 11, ChatID: -100777, Sender: "someone", CanForward: true}
	err := client.ForwardPost(context.Background(), post, 42)
	var fwdErr *relay.ForwardError
	if !errors.As(err, &fwdErr) {
		t.Fatalf("forward failure = %v, want *relay.ForwardError", err)
	}
	if fwdErr.PostID != 11 || fwdErr.Sender != "someone" {
		t.Fatalf("unexpected forward error: %+v", fwdErr)
	}
}

func TestGatewayRefusedBeforeAuthorization(t *testing.T) {
	b := newFakeBridge(t)

	client := dialBridge(t, b)

	_, err := client.ResolveChannel(context.Background(), "foonews")
	if !errors.Is(err, relay.ErrNotAuthenticated) {
		t.Fatalf("resolve before auth = %v, want ErrNotAuthenticated", err)
	}
	if _, err := client.SearchPosts(context.Background(), relay.Channel{}, "q", 1); !errors.Is(err, relay.ErrNotAuthenticated) {
		t.Fatalf("search before auth = %v, want ErrNotAuthenticated", err)
	}
}
