// Package bot composes the Telegram-facing application: command handlers,
// text routing, and the glue between the bot transport and the search
// workflow.
package bot

import (
	"context"
	"errors"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	tgsender "github.com/m3rciful/searchbot/core/telegram/sender"
)

// ErrNotifierUnbound is returned when a reply is requested before the bot
// transport is running.
var ErrNotifierUnbound = errors.New("bot: notifier not bound to a running bot")

// Notifier delivers workflow replies through the bot transport. It is
// created before the bot exists and bound to the live bot in the OnStart
// hook, so the orchestrator can hold it from construction time.
type Notifier struct {
	bot        atomic.Pointer[tele.Bot]
	dispatcher atomic.Pointer[tgsender.Dispatcher]
}

// NewNotifier creates an unbound notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Bind attaches the running bot and its outbound dispatcher.
func (n *Notifier) Bind(bot *tele.Bot, d *tgsender.Dispatcher) {
	n.bot.Store(bot)
	n.dispatcher.Store(d)
}

// Unbind detaches the transport, typically on shutdown.
func (n *Notifier) Unbind() {
	n.bot.Store(nil)
	n.dispatcher.Store(nil)
}

// SendText sends plain text to the user's chat. Delivery goes through the
// async dispatcher when one is bound; queue pressure falls back to a
// synchronous send.
func (n *Notifier) SendText(ctx context.Context, userID int64, text string) error {
	bot := n.bot.Load()
	if bot == nil {
		return ErrNotifierUnbound
	}
	recipient := &tele.User{ID: userID}
	run := func() error {
		_, err := bot.Send(recipient, text)
		return err
	}

	if disp := n.dispatcher.Load(); disp != nil {
		err := disp.Enqueue(ctx, "notify.text", "sendMessage", run)
		if err == nil {
			return nil
		}
		if !errors.Is(err, tgsender.ErrQueueFull) && !errors.Is(err, tgsender.ErrQueueClosed) {
			return err
		}
	}
	return run()
}
