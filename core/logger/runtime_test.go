package logger

import (
	"testing"
	"time"
)

func TestBuildRID(t *testing.T) {
	rid := BuildRID(42, 7, 9)
	if rid != "42:7:9" {
		t.Fatalf("rid = %s", rid)
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 11, 22, 33)
	ctx = WithHandler(ctx, "set_channels")

	if got := RIDFrom(ctx); got != "rid-123" {
		t.Fatalf("rid = %s", got)
	}
	if got := UpdateIDFrom(ctx); got != 11 {
		t.Fatalf("update_id = %d", got)
	}
	if got := UserIDFrom(ctx); got != 22 {
		t.Fatalf("user_id = %d", got)
	}
	if got := ChatIDFrom(ctx); got != 33 {
		t.Fatalf("chat_id = %d", got)
	}
	if got := HandlerFrom(ctx); got != "set_channels" {
		t.Fatalf("handler = %s", got)
	}
}

func TestSanitizeLimit(t *testing.T) {
	in := "abc\x00def\tghi"
	if got := Sanitize(in); got != "abcdef\tghi" {
		t.Fatalf("sanitize = %q", got)
	}
	if got := SanitizeLimit("abcdef", 3); got != "abc" {
		t.Fatalf("limit = %q", got)
	}
	if got := SanitizeLimit("abc", 0); got != "" {
		t.Fatalf("zero limit = %q", got)
	}
}

func TestSummarizeStrings(t *testing.T) {
	joined, truncated := SummarizeStrings([]string{"a", "b", "c"}, 2)
	if joined != "a, b" || !truncated {
		t.Fatalf("got %q truncated=%v", joined, truncated)
	}
	joined, truncated = SummarizeStrings([]string{"a"}, 2)
	if joined != "a" || truncated {
		t.Fatalf("got %q truncated=%v", joined, truncated)
	}
}

func TestRoundMS(t *testing.T) {
	if got := RoundMS(1500 * time.Microsecond); got != 2*time.Millisecond {
		t.Fatalf("round = %v", got)
	}
	if got := RoundMS(-time.Second); got != 0 {
		t.Fatalf("negative = %v", got)
	}
}
