package relay

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeTransport struct {
	phone    string
	code     string
	password string

	codeErr error
}

func (t *fakeTransport) SendPhoneNumber(_ context.Context, phone string) error {
	t.phone = phone
	return nil
}

func (t *fakeTransport) CheckCode(_ context.Context, code string) error {
	if t.codeErr != nil {
		return t.codeErr
	}
	t.code = code
	return nil
}

func (t *fakeTransport) CheckPassword(_ context.Context, password string) error {
	t.password = password
	return nil
}

type fakePrompter struct {
	code     string
	password string
}

func (p fakePrompter) Code(context.Context) (string, error)     { return p.code, nil }
func (p fakePrompter) Password(context.Context) (string, error) { return p.password, nil }

func TestAuthFlowProgression(t *testing.T) {
	tr := &fakeTransport{}
	flow := NewAuthFlow("+10000000000", tr, fakePrompter{code: "12345", password: "hunter2"})
	ctx := context.Background()

	if got := flow.State(); got != AuthAwaitingPhone {
		t.Fatalf("initial state = %q, want %q", got, AuthAwaitingPhone)
	}
	if flow.IsReady() {
		t.Fatal("flow must not be ready before authorization")
	}

	if err := flow.Apply(ctx, "authorizationStateWaitPhoneNumber"); err != nil {
		t.Fatalf("apply wait-phone: %v", err)
	}
	if tr.phone != "+10000000000" {
		t.Fatalf("phone sent = %q, want configured number", tr.phone)
	}

	if err := flow.Apply(ctx, "authorizationStateWaitCode"); err != nil {
		t.Fatalf("apply wait-code: %v", err)
	}
	if tr.code != "12345" {
		t.Fatalf("code sent = %q, want prompted code", tr.code)
	}
	if got := flow.State(); got != AuthAwaitingCode {
		t.Fatalf("state after code = %q, want %q", got, AuthAwaitingCode)
	}

	if err := flow.Apply(ctx, "authorizationStateWaitPassword"); err != nil {
		t.Fatalf("apply wait-password: %v", err)
	}
	if tr.password != "hunter2" {
		t.Fatalf("password sent = %q, want prompted password", tr.password)
	}

	if err := flow.Apply(ctx, "authorizationStateReady"); err != nil {
		t.Fatalf("apply ready: %v", err)
	}
	if !flow.IsReady() {
		t.Fatal("flow must be ready after authorizationStateReady")
	}
	if got := flow.State(); got != AuthReady {
		t.Fatalf("final state = %q, want %q", got, AuthReady)
	}
}

func TestAuthFlowWaitReady(t *testing.T) {
	flow := NewAuthFlow("+1", &fakeTransport{}, fakePrompter{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := flow.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitReady before ready = %v, want deadline exceeded", err)
	}

	if err := flow.Apply(context.Background(), "authorizationStateReady"); err != nil {
		t.Fatalf("apply ready: %v", err)
	}
	if err := flow.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady after ready: %v", err)
	}

	// Ready is idempotent: a repeated update must not panic on double close.
	if err := flow.Apply(context.Background(), "authorizationStateReady"); err != nil {
		t.Fatalf("repeated ready: %v", err)
	}
}

func TestAuthFlowUnknownStateIgnored(t *testing.T) {
	tr := &fakeTransport{}
	flow := NewAuthFlow("+1", tr, fakePrompter{})

	if err := flow.Apply(context.Background(), "authorizationStateWaitTdlibParameters"); err != nil {
		t.Fatalf("unknown state: %v", err)
	}
	if got := flow.State(); got != AuthAwaitingPhone {
		t.Fatalf("state changed on unknown update: %q", got)
	}
}

func TestAuthFlowTransportError(t *testing.T) {
	wantErr := errors.New("code rejected")
	tr := &fakeTransport{codeErr: wantErr}
	flow := NewAuthFlow("+1", tr, fakePrompter{code: "000"})

	err := flow.Apply(context.Background(), "authorizationStateWaitCode")
	if !errors.Is(err, wantErr) {
		t.Fatalf("apply wait-code = %v, want wrapped transport error", err)
	}
}
