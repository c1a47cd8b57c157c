package router

import (
	"time"

	tg "github.com/m3rciful/searchbot/core/telegram"
	"github.com/m3rciful/searchbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Stepper is the minimal interface for a per-user conversation step machine.
type Stepper interface {
	InProgress(userID int64) bool
	StepHandler(c tele.Context) error
}

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes builds the handler for free-form text routing.
// A user with an active conversation step gets the step handler;
// otherwise the text is matched against registered commands and fallbacks.
func TextRoutes(stepper Stepper, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if stepper != nil && stepper.InProgress(c.Sender().ID) {
			return handleWithSummary(c, "step", start, func() error {
				return stepper.StepHandler(c)
			})
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, func() error {
					return cmd.Handler(c)
				})
			}
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
	}
}
