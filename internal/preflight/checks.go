package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"earmark/internal/services"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabase verifies the local database opened and has migrations applied.
func CheckDatabase(ctx context.Context, schema SchemaSource) Result {
	const name = "Database"
	versions, err := schema.SchemaVersions(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if len(versions) == 0 {
		return Result{Name: name, Detail: "no migrations applied"}
	}
	return Result{Name: name, Passed: true, Detail: "schema " + versions[len(versions)-1]}
}

// CheckService obtains a credential, which exercises connectivity and the
// token endpoint in one request. It allows 30 seconds.
func CheckService(ctx context.Context, baseURL string, credentials CredentialSource) Result {
	const name = "Analysis service"

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cred, err := credentials.Acquire(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeServiceError(baseURL, err)}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("%s (credential valid for %s)", baseURL, time.Until(cred.ExpiresAt).Round(time.Minute)),
	}
}

// CheckPushBind verifies the push receiver address can be bound.
func CheckPushBind(bind string) Result {
	const name = "Push receiver"
	listener, err := net.Listen("tcp", strings.TrimSpace(bind))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", bind, err)}
	}
	_ = listener.Close()
	return Result{Name: name, Passed: true, Detail: bind + " (available)"}
}

func summarizeServiceError(baseURL string, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return baseURL + " (timed out)"
	case errors.Is(err, services.ErrAuthUnavailable):
		return baseURL + " (credential could not be issued: " + err.Error() + ")"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return baseURL + " (unreachable: timeout)"
	}
	return baseURL + " (" + err.Error() + ")"
}
