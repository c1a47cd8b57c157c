package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/m3rciful/searchbot/core/logger"
	"log/slog"
)

// AuthState identifies a step of the relay login flow.
type AuthState string

const (
	// AuthAwaitingPhone means the transport asked for the account phone number.
	AuthAwaitingPhone AuthState = "awaiting_phone"
	// AuthAwaitingCode means the transport asked for the login code.
	AuthAwaitingCode AuthState = "awaiting_code"
	// AuthAwaitingPassword means the transport asked for the 2FA password.
	AuthAwaitingPassword AuthState = "awaiting_password"
	// AuthReady means the session is authorized and usable.
	AuthReady AuthState = "ready"
)

// CredentialPrompter supplies interactive login credentials. The console
// prompter lives in cmd; tests inject a canned one.
type CredentialPrompter interface {
	Code(ctx context.Context) (string, error)
	Password(ctx context.Context) (string, error)
}

// AuthTransport is the subset of the session transport the login flow drives.
type AuthTransport interface {
	SendPhoneNumber(ctx context.Context, phone string) error
	CheckCode(ctx context.Context, code string) error
	CheckPassword(ctx context.Context, password string) error
}

// AuthFlow is the login state machine. Authorization-state updates from the
// transport are applied via Apply; once the transport reports the session is
// authorized the Ready channel is closed and the bot may accept traffic.
type AuthFlow struct {
	mu       sync.Mutex
	state    AuthState
	phone    string
	tr       AuthTransport
	prompter CredentialPrompter

	readyOnce sync.Once
	ready     chan struct{}
}

// NewAuthFlow builds the login state machine for the given account phone number.
func NewAuthFlow(phone string, tr AuthTransport, prompter CredentialPrompter) *AuthFlow {
	return &AuthFlow{
		state:    AuthAwaitingPhone,
		phone:    phone,
		tr:       tr,
		prompter: prompter,
		ready:    make(chan struct{}),
	}
}

// State returns the current flow state.
func (f *AuthFlow) State() AuthState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Ready returns a channel closed once the session is authorized.
func (f *AuthFlow) Ready() <-chan struct{} {
	return f.ready
}

// IsReady reports whether the session finished the login flow.
func (f *AuthFlow) IsReady() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the session is authorized or ctx is done.
func (f *AuthFlow) WaitReady(ctx context.Context) error {
	select {
	case <-f.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply advances the flow according to an authorization-state update reported
// by the transport. Unknown states are ignored.
func (f *AuthFlow) Apply(ctx context.Context, state string) error {
	switch state {
	case "authorizationStateWaitPhoneNumber":
		f.setState(AuthAwaitingPhone)
		logger.Info(ctx, "relay", "auth.phone", slog.String("status", "ok"))
		if err := f.tr.SendPhoneNumber(ctx, f.phone); err != nil {
			return fmt.Errorf("send phone number: %w", err)
		}
	case "authorizationStateWaitCode":
		f.setState(AuthAwaitingCode)
		logger.Info(ctx, "relay", "auth.code", slog.String("status", "ok"))
		code, err := f.prompter.Code(ctx)
		if err != nil {
			return fmt.Errorf("prompt login code: %w", err)
		}
		if err := f.tr.CheckCode(ctx, code); err != nil {
			return fmt.Errorf("check login code: %w", err)
		}
	case "authorizationStateWaitPassword":
		f.setState(AuthAwaitingPassword)
		logger.Info(ctx, "relay", "auth.password", slog.String("status", "ok"))
		password, err := f.prompter.Password(ctx)
		if err != nil {
			return fmt.Errorf("prompt password: %w", err)
		}
		if err := f.tr.CheckPassword(ctx, password); err != nil {
			return fmt.Errorf("check password: %w", err)
		}
	case "authorizationStateReady":
		f.setState(AuthReady)
		f.readyOnce.Do(func() { close(f.ready) })
		logger.Info(ctx, "relay", "auth.ready", slog.String("status", "ok"))
	}
	return nil
}

func (f *AuthFlow) setState(st AuthState) {
	f.mu.Lock()
	f.state = st
	f.mu.Unlock()
}
