package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"earmark/internal/services/aispy"
)

type fakeRemote struct {
	targetErrs []error
	targetCall int
	putErr     error
	puts       int
}

func (f *fakeRemote) RequestUploadTarget(context.Context, string, string) (aispy.UploadTarget, error) {
	idx := f.targetCall
	f.targetCall++
	if idx < len(f.targetErrs) && f.targetErrs[idx] != nil {
		return aispy.UploadTarget{}, f.targetErrs[idx]
	}
	return aispy.UploadTarget{SignedURL: "https://storage.test/obj", FileName: "obj", Bucket: "b"}, nil
}

func (f *fakeRemote) PutObject(context.Context, string, string, []byte) error {
	f.puts++
	return f.putErr
}

func TestRequestTargetRetriesThenSucceeds(t *testing.T) {
	remote := &fakeRemote{targetErrs: []error{errors.New("boom")}}
	gateway := NewGateway(remote)

	target, err := gateway.RequestTarget(context.Background(), "a.mp3", "audio/mpeg")
	if err != nil {
		t.Fatalf("RequestTarget: %v", err)
	}
	if remote.targetCall != 2 || target.Bucket != "b" {
		t.Fatalf("calls=%d target=%+v", remote.targetCall, target)
	}
}

func TestRequestTargetSignalsFallbackAfterBudget(t *testing.T) {
	cause := errors.New("boom")
	remote := &fakeRemote{targetErrs: []error{cause, cause, cause}}
	gateway := NewGateway(remote, WithTargetAttempts(2))

	_, err := gateway.RequestTarget(context.Background(), "a.mp3", "audio/mpeg")
	if !errors.Is(err, ErrFallbackRequired) {
		t.Fatalf("expected ErrFallbackRequired, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause preserved, got %v", err)
	}
	if remote.targetCall != 2 {
		t.Fatalf("calls = %d, want 2", remote.targetCall)
	}
}

func TestTransferSkipsExpiredTarget(t *testing.T) {
	now := time.Unix(1000, 0)
	remote := &fakeRemote{}
	gateway := NewGateway(remote, WithClock(func() time.Time { return now }))

	err := gateway.Transfer(context.Background(), Target{ExpiresAt: now}, []byte("x"))
	if !errors.Is(err, ErrFallbackRequired) {
		t.Fatalf("expected ErrFallbackRequired, got %v", err)
	}
	if remote.puts != 0 {
		t.Fatal("expired target must not be attempted")
	}
}

func TestTransferFailureSignalsFallback(t *testing.T) {
	remote := &fakeRemote{putErr: errors.New("403")}
	gateway := NewGateway(remote)

	target, err := gateway.RequestTarget(context.Background(), "a.mp3", "audio/mpeg")
	if err != nil {
		t.Fatalf("RequestTarget: %v", err)
	}
	if err := gateway.Transfer(context.Background(), target, []byte("x")); !errors.Is(err, ErrFallbackRequired) {
		t.Fatalf("expected ErrFallbackRequired, got %v", err)
	}
	if remote.puts != 1 {
		t.Fatalf("puts = %d", remote.puts)
	}
}
