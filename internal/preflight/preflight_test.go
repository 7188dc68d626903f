package preflight

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"earmark/internal/auth"
	"earmark/internal/config"
	"earmark/internal/services"
)

type fakeSchema struct {
	versions []string
	err      error
}

func (f fakeSchema) SchemaVersions(context.Context) ([]string, error) { return f.versions, f.err }

type fakeCredentials struct {
	cred auth.Credential
	err  error
}

func (f fakeCredentials) Acquire(context.Context) (auth.Credential, error) { return f.cred, f.err }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDatabase(t *testing.T) {
	ok := CheckDatabase(context.Background(), fakeSchema{versions: []string{"001_initial"}})
	if !ok.Passed || !strings.Contains(ok.Detail, "001_initial") {
		t.Fatalf("unexpected result %+v", ok)
	}
	empty := CheckDatabase(context.Background(), fakeSchema{})
	if empty.Passed {
		t.Fatal("expected failure without migrations")
	}
	broken := CheckDatabase(context.Background(), fakeSchema{err: errors.New("disk I/O error")})
	if broken.Passed || broken.Detail != "disk I/O error" {
		t.Fatalf("unexpected result %+v", broken)
	}
}

func TestCheckService(t *testing.T) {
	ok := CheckService(context.Background(), "https://svc.example", fakeCredentials{
		cred: auth.Credential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)},
	})
	if !ok.Passed {
		t.Fatalf("expected pass, got %+v", ok)
	}

	denied := services.Wrap(services.ErrAuthUnavailable, "auth", "issue credential", "rejected", nil)
	failed := CheckService(context.Background(), "https://svc.example", fakeCredentials{err: denied})
	if failed.Passed || !strings.Contains(failed.Detail, "credential could not be issued") {
		t.Fatalf("unexpected result %+v", failed)
	}
}

func TestCheckPushBind(t *testing.T) {
	if r := CheckPushBind("127.0.0.1:0"); !r.Passed {
		t.Fatalf("expected free port to pass, got %+v", r)
	}

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	if r := CheckPushBind(busy.Addr().String()); r.Passed {
		t.Fatal("expected bound port to fail")
	}
}

func TestRunAllSkipsDisabledPush(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Push.Bind = ""

	results := RunAll(context.Background(), &cfg, fakeSchema{versions: []string{"001_initial"}}, nil)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(results), results)
	}
	if Failed(results) {
		t.Fatalf("expected all checks to pass: %+v", results)
	}

	cfg.Push.Bind = "127.0.0.1:0"
	results = RunAll(context.Background(), &cfg, nil, nil)
	if results[len(results)-1].Name != "Push receiver" {
		t.Fatalf("expected push check last, got %+v", results)
	}
}
