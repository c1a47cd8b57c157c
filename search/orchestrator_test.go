package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/searchbot/relay"
)

type orchestratorFixture struct {
	store    *Store
	gateway  *mockGateway
	notifier *recordingNotifier
	recorder *recordingRecorder
	orch     *Orchestrator
}

func newFixture(t *testing.T, ready func() bool) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		store:    NewStore(),
		gateway:  &mockGateway{},
		notifier: &recordingNotifier{},
		recorder: &recordingRecorder{},
	}
	orch, err := NewOrchestrator(Options{
		Store:    f.store,
		Gateway:  f.gateway,
		Notifier: f.notifier,
		Recorder: f.recorder,
		Ready:    ready,
	})
	require.NoError(t, err)
	f.orch = orch
	return f
}

// configure walks a session through set_channels and set_query.
func (f *orchestratorFixture) configure(t *testing.T, userID int64, links, query string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.orch.HandleCommand(ctx, userID, "", CmdSetChannels))
	require.NoError(t, f.orch.HandleText(ctx, userID, "", links))
	require.NoError(t, f.orch.HandleCommand(ctx, userID, "", CmdSetQuery))
	require.NoError(t, f.orch.HandleText(ctx, userID, "", query))
}

func TestNewOrchestratorValidation(t *testing.T) {
	_, err := NewOrchestrator(Options{})
	assert.Error(t, err)

	_, err = NewOrchestrator(Options{Store: NewStore(), Gateway: &mockGateway{}})
	assert.Error(t, err)
}

func TestWelcomeOnFirstContact(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.gateway.On("ResolveUserChannel", mock.Anything, "alice").
		Return(relay.Channel{ID: 100, Username: "alice"}, nil).Once()

	require.NoError(t, f.orch.HandleCommand(ctx, 1, "alice", CmdSetChannels))

	require.GreaterOrEqual(t, len(f.notifier.sent), 2)
	assert.Equal(t, MsgWelcome, f.notifier.sent[0].Text)

	// Second contact must not greet again.
	require.NoError(t, f.orch.HandleCommand(ctx, 1, "alice", CmdSetChannels))
	f.gateway.AssertNumberOfCalls(t, "ResolveUserChannel", 1)
}

func TestWelcomeSkippedWhenLookupFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.gateway.On("ResolveUserChannel", mock.Anything, "ghost").
		Return(relay.Channel{}, relay.ErrChannelNotFound).Once()

	require.NoError(t, f.orch.HandleCommand(ctx, 2, "ghost", CmdSetChannels))

	// Session exists anyway; only the greeting is skipped.
	_, ok := f.store.Get(2)
	assert.True(t, ok)
	for _, msg := range f.notifier.sent {
		assert.NotEqual(t, MsgWelcome, msg.Text)
	}
}

func TestSetChannelsFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.orch.HandleCommand(ctx, 3, "", CmdSetChannels))
	sess, _ := f.store.Get(3)
	assert.Equal(t, StepAwaitingChannels, sess.CurrentStep())
	assert.Equal(t, msgPromptChannels, f.notifier.last())

	// Text that is not an absolute link is rejected without touching state.
	require.NoError(t, f.orch.HandleText(ctx, 3, "", "not a url"))
	assert.Equal(t, StepAwaitingChannels, sess.CurrentStep())
	assert.Empty(t, sess.Channels)
	assert.Equal(t, msgBadLink, f.notifier.last())

	require.NoError(t, f.orch.HandleText(ctx, 3, "", "https://t.me/foo https://t.me/bar"))
	assert.Equal(t, []string{"foo", "bar"}, sess.Channels)
	assert.Equal(t, msgLinkAccepted, f.notifier.last())

	// A repeated paste replaces the whole list, not appends to it.
	require.NoError(t, f.orch.HandleText(ctx, 3, "", "https://t.me/baz"))
	assert.Equal(t, []string{"baz"}, sess.Channels)
}

func TestSetQueryFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.orch.HandleCommand(ctx, 4, "", CmdSetQuery))
	sess, _ := f.store.Get(4)
	assert.Equal(t, StepAwaitingQuery, sess.CurrentStep())
	assert.Equal(t, msgPromptQuery, f.notifier.last())

	require.NoError(t, f.orch.HandleText(ctx, 4, "", "golang jobs"))
	assert.Equal(t, "golang jobs", sess.Query)
	assert.Equal(t, StepDefault, sess.CurrentStep())
	assert.Equal(t, msgQuerySet, f.notifier.last())
}

func TestStartSearchingRequiresConfiguration(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.orch.HandleCommand(ctx, 5, "", CmdStartSearching))
	sess, _ := f.store.Get(5)
	assert.Equal(t, StepDefault, sess.CurrentStep())
	assert.Equal(t, msgNoChannels, f.notifier.last())

	require.NoError(t, f.orch.HandleCommand(ctx, 5, "", CmdSetChannels))
	require.NoError(t, f.orch.HandleText(ctx, 5, "", "https://t.me/foo"))
	require.NoError(t, f.orch.HandleCommand(ctx, 5, "", CmdStartSearching))
	assert.Equal(t, msgNoQuery, f.notifier.last())
	assert.Equal(t, StepAwaitingChannels, sess.CurrentStep())
}

func TestResetChannelsKeepsQuery(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.configure(t, 6, "https://t.me/foo", "query text")
	sess, _ := f.store.Get(6)
	require.NotEmpty(t, sess.Channels)

	require.NoError(t, f.orch.HandleCommand(ctx, 6, "", CmdResetChannels))
	assert.Empty(t, sess.Channels)
	assert.Equal(t, "query text", sess.Query)
	assert.Equal(t, StepDefault, sess.CurrentStep())
	assert.Equal(t, msgChannelsReset, f.notifier.last())
}

func TestRelayNotReadyRefusesCommands(t *testing.T) {
	f := newFixture(t, func() bool { return false })
	ctx := context.Background()

	require.NoError(t, f.orch.HandleCommand(ctx, 7, "", CmdSetChannels))
	sess, _ := f.store.Get(7)
	assert.Equal(t, StepDefault, sess.CurrentStep())
	assert.Equal(t, msgNotReady, f.notifier.last())
}

func TestScanIsolatesChannelFailures(t *testing.T) {
	f := newFixture(t, func() bool { return true })
	ctx := context.Background()

	f.configure(t, 8, "https://t.me/x https://t.me/y https://t.me/z", "news")

	chX := relay.Channel{ID: 1001, Username: "x"}
	chZ := relay.Channel{ID: 1003, Username: "z"}
	f.gateway.On("ResolveChannel", mock.Anything, "x").Return(chX, nil).Once()
	f.gateway.On("ResolveChannel", mock.Anything, "y").
		Return(relay.Channel{}, relay.ErrChannelNotFound).Once()
	f.gateway.On("ResolveChannel", mock.Anything, "z").Return(chZ, nil).Once()

	postsX := []relay.Post{
		{ID: 1, ChatID: 1001, Text: "news one", CanForward: true},
		{ID: 2, ChatID: 1001, Text: "protected news", CanForward: false},
	}
	postsZ := []relay.Post{
		{ID: 3, ChatID: 1003, Text: "news three", CanForward: true},
		{ID: 4, ChatID: 1003, Text: "news four", CanForward: true},
	}
	f.gateway.On("SearchPosts", mock.Anything, chX, "news", searchLimit).Return(postsX, nil).Once()
	f.gateway.On("SearchPosts", mock.Anything, chZ, "news", searchLimit).Return(postsZ, nil).Once()

	f.gateway.On("SendDirect", mock.Anything, int64(8), mock.Anything).Return(nil).Twice()

	f.gateway.On("ForwardPost", mock.Anything, postsX[0], int64(8)).Return(nil).Once()
	f.gateway.On("ForwardPost", mock.Anything, postsZ[0], int64(8)).Return(nil).Once()
	f.gateway.On("ForwardPost", mock.Anything, postsZ[1], int64(8)).
		Return(&relay.ForwardError{PostID: 4, Err: errors.New("boom")}).Once()

	require.NoError(t, f.orch.HandleCommand(ctx, 8, "", CmdStartSearching))

	sess, _ := f.store.Get(8)
	assert.Equal(t, StepDefault, sess.CurrentStep())
	assert.True(t, sess.ScanIdle())
	assert.Contains(t, f.notifier.texts(), msgSearchStarted)

	require.Len(t, f.recorder.records, 3)
	byChannel := map[string]ScanRecord{}
	for _, rec := range f.recorder.records {
		byChannel[rec.Channel] = rec
		assert.Equal(t, int64(8), rec.UserID)
		assert.Equal(t, "news", rec.Query)
		assert.NotEmpty(t, rec.ScanID)
		assert.False(t, rec.FinishedAt.Before(rec.StartedAt))
	}
	assert.Equal(t, 2, byChannel["x"].Matched)
	assert.Equal(t, 1, byChannel["x"].Forwarded)
	assert.Equal(t, 0, byChannel["x"].Failed)
	assert.Equal(t, 0, byChannel["y"].Matched)
	assert.Equal(t, 2, byChannel["z"].Matched)
	assert.Equal(t, 1, byChannel["z"].Forwarded)
	assert.Equal(t, 1, byChannel["z"].Failed)

	// All three channels share the same scan identifier.
	assert.Equal(t, byChannel["x"].ScanID, byChannel["y"].ScanID)
	assert.Equal(t, byChannel["y"].ScanID, byChannel["z"].ScanID)

	f.gateway.AssertExpectations(t)
}

func TestScanWithNoMatchesSendsNoSummary(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.configure(t, 9, "https://t.me/quiet", "rare phrase")

	ch := relay.Channel{ID: 2000, Username: "quiet"}
	f.gateway.On("ResolveChannel", mock.Anything, "quiet").Return(ch, nil).Once()
	f.gateway.On("SearchPosts", mock.Anything, ch, "rare phrase", searchLimit).
		Return([]relay.Post{}, nil).Once()

	require.NoError(t, f.orch.HandleCommand(ctx, 9, "", CmdStartSearching))

	sess, _ := f.store.Get(9)
	assert.Equal(t, StepDefault, sess.CurrentStep())
	f.gateway.AssertNotCalled(t, "SendDirect", mock.Anything, mock.Anything, mock.Anything)
	f.gateway.AssertNotCalled(t, "ForwardPost", mock.Anything, mock.Anything, mock.Anything)
}

func TestInProgress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.False(t, f.orch.InProgress(10))

	require.NoError(t, f.orch.HandleCommand(ctx, 10, "", CmdSetQuery))
	assert.True(t, f.orch.InProgress(10))

	require.NoError(t, f.orch.HandleText(ctx, 10, "", "done"))
	assert.False(t, f.orch.InProgress(10))
}

func TestTextIgnoredInDefaultStep(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.orch.HandleText(ctx, 11, "", "random chatter"))
	sess, _ := f.store.Get(11)
	assert.Empty(t, sess.Channels)
	assert.Empty(t, sess.Query)
	assert.Equal(t, StepDefault, sess.CurrentStep())
	assert.Empty(t, f.notifier.sent)
}
