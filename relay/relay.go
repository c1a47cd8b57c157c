// Package relay defines the contract of the authenticated user-client session
// used to resolve channels, search their posts, and forward matches to users.
// The bot core depends on this contract only; the concrete session lives in
// the tdjson subpackage.
package relay

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrChannelNotFound indicates the channel identifier could not be resolved.
	ErrChannelNotFound = errors.New("relay: channel not found")
	// ErrNotAuthenticated indicates the session has not finished the login flow yet.
	ErrNotAuthenticated = errors.New("relay: session not authenticated")
	// ErrForwardNotAllowed indicates the post is marked non-forwardable by the transport.
	ErrForwardNotAllowed = errors.New("relay: forwarding not allowed for post")
)

// Channel is a resolved handle of a broadcast channel or a private chat.
type Channel struct {
	ID       int64
	Title    string
	Username string
}

// Post is a single channel message returned by a search.
type Post struct {
	ID         int64
	ChatID     int64
	Sender     string
	Text       string
	CanForward bool
}

// ForwardError reports a transport-level failure while forwarding a specific
// post. It carries enough context to attribute the failure in logs.
type ForwardError struct {
	PostID int64
	Sender string
	Err    error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("relay: post %d from %q not forwarded: %v", e.PostID, e.Sender, e.Err)
}

func (e *ForwardError) Unwrap() error { return e.Err }

// Gateway abstracts the authenticated messaging-client session.
type Gateway interface {
	// ResolveChannel resolves a public channel username or invite slug.
	ResolveChannel(ctx context.Context, identifier string) (Channel, error)
	// SearchPosts returns posts matching query in search order, at most limit.
	SearchPosts(ctx context.Context, ch Channel, query string, limit int) ([]Post, error)
	// ForwardPost copies a post into the user's chat.
	ForwardPost(ctx context.Context, post Post, toUserID int64) error
	// SendDirect sends a plain text message from the relay account.
	SendDirect(ctx context.Context, toUserID int64, text string) error
	// ResolveUserChannel resolves a user's own chat by username, used to
	// confirm the chat exists before first contact.
	ResolveUserChannel(ctx context.Context, username string) (Channel, error)
}
