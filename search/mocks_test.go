package search

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/m3rciful/searchbot/relay"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) ResolveChannel(ctx context.Context, identifier string) (relay.Channel, error) {
	args := m.Called(ctx, identifier)
	return args.Get(0).(relay.Channel), args.Error(1)
}

func (m *mockGateway) SearchPosts(ctx context.Context, ch relay.Channel, query string, limit int) ([]relay.Post, error) {
	args := m.Called(ctx, ch, query, limit)
	if posts, ok := args.Get(0).([]relay.Post); ok {
		return posts, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) ForwardPost(ctx context.Context, post relay.Post, toUserID int64) error {
	args := m.Called(ctx, post, toUserID)
	return args.Error(0)
}

func (m *mockGateway) SendDirect(ctx context.Context, toUserID int64, text string) error {
	args := m.Called(ctx, toUserID, text)
	return args.Error(0)
}

func (m *mockGateway) ResolveUserChannel(ctx context.Context, username string) (relay.Channel, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(relay.Channel), args.Error(1)
}

// recordingNotifier collects every reply text per user.
type recordingNotifier struct {
	sent []sentMessage
}

type sentMessage struct {
	UserID int64
	Text   string
}

func (n *recordingNotifier) SendText(_ context.Context, userID int64, text string) error {
	n.sent = append(n.sent, sentMessage{UserID: userID, Text: text})
	return nil
}

func (n *recordingNotifier) texts() []string {
	out := make([]string, 0, len(n.sent))
	for _, msg := range n.sent {
		out = append(out, msg.Text)
	}
	return out
}

func (n *recordingNotifier) last() string {
	if len(n.sent) == 0 {
		return ""
	}
	return n.sent[len(n.sent)-1].Text
}

// recordingRecorder collects scan records in order.
type recordingRecorder struct {
	records []ScanRecord
}

func (r *recordingRecorder) Record(_ context.Context, rec ScanRecord) error {
	r.records = append(r.records, rec)
	return nil
}
