package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/searchbot/core/logger"
	"github.com/m3rciful/searchbot/relay"
)

// searchLimit caps how many matches are requested per channel.
const searchLimit = 99

// Command identifies one of the fixed workflow commands.
type Command string

const (
	CmdSetChannels    Command = "/set_channels"
	CmdSetQuery       Command = "/set_query"
	CmdStartSearching Command = "/start_searching"
	CmdResetChannels  Command = "/reset_channels"
)

// User-facing reply texts.
const (
	MsgWelcome        = "Привет! Я провожу поиск по каналам! Я буду присылать тебе найденные посты!"
	msgPromptChannels = "Введите ссылки на каналы для поиска!"
	msgPromptQuery    = "Введите ключевую фразу для поиска!"
	msgSearchStarted  = "Поиск начался!"
	msgChannelsReset  = "Список каналов сброшен!"
	msgNoChannels     = "Не заданы каналы для поиска!"
	msgNoQuery        = "Не задана фраза для поиска!"
	msgBadLink        = "Введите корректный адрес канала. Пример адреса: https://t.me/username"
	msgLinkAccepted   = "Ссылка принята!"
	msgQuerySet       = "Ключевая фраза задана!"
	msgNotReady       = "Поиск ещё подключается к Telegram, попробуйте чуть позже."
)

// Notifier delivers workflow replies to the user's bot chat.
type Notifier interface {
	SendText(ctx context.Context, userID int64, text string) error
}

// ScanRecord summarizes the outcome of one channel within a scan.
type ScanRecord struct {
	ScanID     string
	UserID     int64
	Channel    string
	Query      string
	Matched    int
	Forwarded  int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder persists scan outcomes. Optional; a nil recorder disables auditing.
type Recorder interface {
	Record(ctx context.Context, rec ScanRecord) error
}

// Options wires the orchestrator's collaborators. Store, Gateway and
// Notifier are required; Recorder and Ready are optional.
type Options struct {
	Store    *Store
	Gateway  relay.Gateway
	Notifier Notifier
	Recorder Recorder
	// Ready reports whether the relay session is authorized. Workflow
	// commands are refused with a retry hint while it returns false.
	Ready func() bool
}

// Orchestrator drives the per-user workflow: it applies commands and free
// text to the session state machine and executes scans against the relay.
type Orchestrator struct {
	store    *Store
	gateway  relay.Gateway
	notifier Notifier
	recorder Recorder
	ready    func() bool
}

// NewOrchestrator validates the wiring and builds the orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("search: options.Store is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("search: options.Gateway is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("search: options.Notifier is required")
	}
	return &Orchestrator{
		store:    opts.Store,
		gateway:  opts.Gateway,
		notifier: opts.Notifier,
		recorder: opts.Recorder,
		ready:    opts.Ready,
	}, nil
}

// Touch ensures a session exists for the user, greeting them on first
// contact. It returns the session.
func (o *Orchestrator) Touch(ctx context.Context, userID int64, displayName string) *Session {
	sess, created := o.store.GetOrCreate(userID, displayName)
	if created {
		o.welcome(ctx, sess)
	}
	return sess
}

// welcome confirms the user's chat is reachable from the relay account and
// greets them. Runs once per session; a failed lookup only skips the greeting.
func (o *Orchestrator) welcome(ctx context.Context, sess *Session) {
	if sess.DisplayName == "" {
		return
	}
	if _, err := o.gateway.ResolveUserChannel(ctx, sess.DisplayName); err != nil {
		logger.Warn(ctx, "search", "welcome.lookup_failed",
			slog.Int64("user_id", sess.ID),
			slog.String("err", err.Error()))
		return
	}
	logger.Info(ctx, "search", "session.created", slog.Int64("user_id", sess.ID))
	o.send(ctx, sess.ID, MsgWelcome)
}

// InProgress reports whether the user has a multi-step conversation going,
// meaning free text should be routed to HandleText instead of the fallback.
func (o *Orchestrator) InProgress(userID int64) bool {
	sess, ok := o.store.Get(userID)
	if !ok {
		return false
	}
	return sess.CurrentStep() != StepDefault
}

// HandleCommand applies one of the workflow commands to the user's session.
func (o *Orchestrator) HandleCommand(ctx context.Context, userID int64, displayName string, cmd Command) error {
	sess := o.Touch(ctx, userID, displayName)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if o.ready != nil && !o.ready() {
		logger.Warn(ctx, "search", "command.relay_not_ready",
			slog.Int64("user_id", userID),
			slog.String("command", string(cmd)))
		o.send(ctx, userID, msgNotReady)
		return nil
	}

	switch cmd {
	case CmdSetChannels:
		sess.Step = StepAwaitingChannels
		o.send(ctx, userID, msgPromptChannels)
	case CmdSetQuery:
		sess.Step = StepAwaitingQuery
		o.send(ctx, userID, msgPromptQuery)
	case CmdResetChannels:
		sess.Channels = nil
		sess.Step = StepDefault
		logger.Info(ctx, "search", "channels.reset", slog.Int64("user_id", userID))
		o.send(ctx, userID, msgChannelsReset)
	case CmdStartSearching:
		if len(sess.Channels) == 0 {
			o.send(ctx, userID, msgNoChannels)
			return nil
		}
		if sess.Query == "" {
			o.send(ctx, userID, msgNoQuery)
			return nil
		}
		sess.Step = StepSearching
		o.send(ctx, userID, msgSearchStarted)
		o.runScan(ctx, sess)
	default:
		return fmt.Errorf("search: unknown command %q", cmd)
	}
	return nil
}

// HandleText applies a free-text message to the user's session. Outside of
// the awaiting steps the text is ignored.
func (o *Orchestrator) HandleText(ctx context.Context, userID int64, displayName, text string) error {
	sess := o.Touch(ctx, userID, displayName)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch sess.Step {
	case StepAwaitingChannels:
		if !looksLikeLink(text) {
			o.send(ctx, userID, msgBadLink)
			return nil
		}
		sess.Channels = ParseChannelLinks(text)
		summary, truncated := logger.SummarizeStrings(sess.Channels, 10)
		logger.Info(ctx, "search", "channels.set",
			slog.Int64("user_id", userID),
			slog.Int("count", len(sess.Channels)),
			slog.String("channels", summary),
			slog.Bool("truncated", truncated))
		o.send(ctx, userID, msgLinkAccepted)
	case StepAwaitingQuery:
		sess.Query = text
		sess.Step = StepDefault
		logger.Info(ctx, "search", "query.set",
			slog.Int64("user_id", userID),
			slog.String("query", logger.SanitizeLimit(text, 128)))
		o.send(ctx, userID, msgQuerySet)
	case StepSearching:
		logger.Debug(ctx, "search", "text.ignored_while_searching", slog.Int64("user_id", userID))
	default:
		logger.Debug(ctx, "search", "text.ignored", slog.Int64("user_id", userID))
	}
	return nil
}

// runScan walks the session's channels in order. A failing channel is
// logged and skipped; the scan always finishes and returns the session to
// StepDefault with clean scratch state. Called with the session lock held.
func (o *Orchestrator) runScan(ctx context.Context, sess *Session) {
	scanID := uuid.NewString()
	logger.Info(ctx, "scan", "scan.start",
		slog.String("scan_id", scanID),
		slog.Int64("user_id", sess.ID),
		slog.Int("channels", len(sess.Channels)),
		slog.String("query", logger.SanitizeLimit(sess.Query, 128)))

	for _, identifier := range sess.Channels {
		sess.scan.ActiveChannel = identifier
		rec := o.scanChannel(ctx, sess, scanID, identifier)
		o.record(ctx, rec)
		sess.clearScan()
	}

	sess.clearScan()
	sess.Step = StepDefault
	logger.Info(ctx, "scan", "scan.complete",
		slog.String("scan_id", scanID),
		slog.Int64("user_id", sess.ID))
}

func (o *Orchestrator) scanChannel(ctx context.Context, sess *Session, scanID, identifier string) (rec ScanRecord) {
	rec = ScanRecord{
		ScanID:    scanID,
		UserID:    sess.ID,
		Channel:   identifier,
		Query:     sess.Query,
		StartedAt: time.Now(),
	}
	defer func() { rec.FinishedAt = time.Now() }()

	ch, err := o.gateway.ResolveChannel(ctx, identifier)
	if err != nil {
		if errors.Is(err, relay.ErrChannelNotFound) {
			logger.Warn(ctx, "scan", "channel.not_found",
				slog.String("scan_id", scanID),
				slog.String("channel", identifier))
		} else {
			logger.Error(ctx, "scan", "channel.resolve_failed",
				slog.String("scan_id", scanID),
				slog.String("channel", identifier),
				slog.String("err", err.Error()))
		}
		return rec
	}

	posts, err := o.gateway.SearchPosts(ctx, ch, sess.Query, searchLimit)
	if err != nil {
		logger.Error(ctx, "scan", "channel.search_failed",
			slog.String("scan_id", scanID),
			slog.String("channel", identifier),
			slog.String("err", err.Error()))
		return rec
	}
	rec.Matched = len(posts)
	if len(posts) == 0 {
		logger.Debug(ctx, "scan", "channel.no_matches",
			slog.String("scan_id", scanID),
			slog.String("channel", identifier))
		return rec
	}

	sess.scan.Pending = posts
	summary := fmt.Sprintf("В канале %q найдено %d сообщений по запросу %q", identifier, len(posts), sess.Query)
	if err := o.gateway.SendDirect(ctx, sess.ID, summary); err != nil {
		logger.Warn(ctx, "scan", "summary.send_failed",
			slog.String("scan_id", scanID),
			slog.String("channel", identifier),
			slog.String("err", err.Error()))
	}

	rec.Forwarded, rec.Failed = o.forwardPosts(ctx, scanID, posts, sess.ID)
	logger.Info(ctx, "scan", "channel.done",
		slog.String("scan_id", scanID),
		slog.String("channel", identifier),
		slog.Int("matched", rec.Matched),
		slog.Int("forwarded", rec.Forwarded),
		slog.Int("failed", rec.Failed))
	return rec
}

// forwardPosts relays matches one by one. Posts the source forbids
// forwarding are skipped; individual failures never stop the batch.
func (o *Orchestrator) forwardPosts(ctx context.Context, scanID string, posts []relay.Post, toUserID int64) (forwarded, failed int) {
	for _, post := range posts {
		if !post.CanForward {
			logger.Debug(ctx, "scan", "post.skip_protected",
				slog.String("scan_id", scanID),
				slog.Int64("post_id", post.ID))
			continue
		}
		if err := o.gateway.ForwardPost(ctx, post, toUserID); err != nil {
			failed++
			attrs := []slog.Attr{
				slog.String("scan_id", scanID),
				slog.Int64("post_id", post.ID),
				slog.String("err", err.Error()),
			}
			var fwdErr *relay.ForwardError
			if errors.As(err, &fwdErr) && fwdErr.Sender != "" {
				attrs = append(attrs, slog.String("post_sender", fwdErr.Sender))
			}
			logger.Error(ctx, "scan", "post.forward_failed", attrs...)
			continue
		}
		forwarded++
	}
	return forwarded, failed
}

func (o *Orchestrator) record(ctx context.Context, rec ScanRecord) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, rec); err != nil {
		logger.Warn(ctx, "scan", "record.failed",
			slog.String("scan_id", rec.ScanID),
			slog.String("channel", rec.Channel),
			slog.String("err", err.Error()))
	}
}

// send delivers a reply and swallows transport errors: the workflow result
// must not depend on whether a status message reached the user.
func (o *Orchestrator) send(ctx context.Context, userID int64, text string) {
	if err := o.notifier.SendText(ctx, userID, text); err != nil {
		logger.Warn(ctx, "search", "notify.failed",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()))
	}
}
