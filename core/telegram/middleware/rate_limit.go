package middleware

import (
	"sync"
	"time"

	"github.com/m3rciful/searchbot/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// RateLimitMiddleware returns a middleware that enforces a minimum interval
// between messages from the same user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	var (
		userLastSeen   = make(map[int64]time.Time)
		userLastSeenMu sync.Mutex
	)

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.Interval <= 0 {
				return next(c)
			}

			upd := c.Update()
			kind := "message"
			if upd.Callback != nil {
				kind = "callback"
			}
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}

			sender := c.Sender()
			if sender == nil {
				return next(c)
			}

			now := time.Now()
			userLastSeenMu.Lock()
			last, seen := userLastSeen[sender.ID]
			limited := seen && now.Sub(last) < opts.Interval
			if !limited {
				userLastSeen[sender.ID] = now
			}
			userLastSeenMu.Unlock()

			if !limited {
				return next(c)
			}

			logger.TG.Debug("update rate limited",
				slog.String("event", "rate_limited"),
				slog.Int64("user_id", sender.ID),
				slog.Duration("interval", opts.Interval),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}
