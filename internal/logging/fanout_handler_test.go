package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewTeeHandlerWithoutMembersIsNoop(t *testing.T) {
	if _, ok := newTeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every member is nil")
	}
}

func TestNewTeeHandlerUnwrapsSingleMember(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newTeeHandler(nil, inner); h != inner {
		t.Fatalf("expected the lone handler back, got %T", h)
	}
}

func TestTeeHandlerRespectsMemberLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := newTeeHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("tee should accept debug when any member does")
	}

	slog.New(h).With(FieldComponent, "monitor").Debug("poll scheduled")

	if infoBuf.Len() != 0 {
		t.Fatalf("info member received a debug record: %q", infoBuf.String())
	}
	if !bytes.Contains(debugBuf.Bytes(), []byte(`"component":"monitor"`)) {
		t.Fatalf("debug member lost bound attrs: %q", debugBuf.String())
	}
}
