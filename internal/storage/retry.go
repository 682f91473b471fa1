package storage

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/services"
)

const sqliteBusyCode = 5

// RetryPolicy bounds the automatic retries applied to every store operation.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// PolicyFromConfig builds the retry policy from configuration.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		Attempts: cfg.Storage.RetryAttempts,
		Base:     time.Duration(cfg.Storage.RetryBaseMillis) * time.Millisecond,
		Max:      time.Duration(cfg.Storage.RetryMaxMillis) * time.Millisecond,
	}
}

// errNoRetry shields business-level results (such as sql.ErrNoRows) from the
// retry loop.
type errNoRetry struct{ err error }

func (e errNoRetry) Error() string { return e.err.Error() }
func (e errNoRetry) Unwrap() error { return e.err }

// Do runs op under the policy. Transient failures are retried with
// exponential backoff; exhaustion surfaces a services.ErrTransient-classified
// error so the orchestrator treats it as infrastructure, not business logic.
func (p RetryPolicy) Do(ctx context.Context, operation string, op func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.Base

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		var skip errNoRetry
		if errors.As(lastErr, &skip) {
			return skip.err
		}
		if !IsTransient(lastErr) || attempt == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= p.Max {
			delay = next
		} else {
			delay = p.Max
		}
	}

	if IsTransient(lastErr) {
		return services.Wrap(services.ErrTransient, "storage", operation, "retries exhausted", lastErr)
	}
	return lastErr
}

// IsTransient reports whether an error matches the known transient
// infrastructure signatures: a busy or warming-up store, or a transport that
// died after an idle period.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientSignatures := []string{
		"sqlite_busy",
		"database is locked",
		"database table is locked",
		"not ready",
		"empty response",
		"connection reset",
		"connection refused",
		"broken pipe",
		"i/o timeout",
	}
	for _, signature := range transientSignatures {
		if strings.Contains(msg, signature) {
			return true
		}
	}
	return false
}
