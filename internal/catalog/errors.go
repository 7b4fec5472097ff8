package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"google.golang.org/api/googleapi"

	"github.com/ytget/yt-manager/internal/model"
)

// failureClass buckets a remote-call failure for retry handling.
type failureClass int

const (
	classOther failureClass = iota
	classTransient
	classRateLimited
	classQuotaExceeded
)

// AuthError is returned when an operation requires a valid session and none
// is available. It is fatal for the calling operation only.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "not authenticated: " + e.Reason
}

// QuotaExceededError carries whatever was accumulated before the remote
// catalog ran out of quota, so callers can render partial data instead of
// discarding everything.
type QuotaExceededError struct {
	Message string
	Partial []model.Video
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s (%d partial items)", e.Message, len(e.Partial))
}

// classify buckets err by inspecting the API error reason and the underlying
// network failure. Anything unrecognized is classOther and propagates
// immediately.
func classify(err error) failureClass {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		for _, item := range apiErr.Errors {
			switch item.Reason {
			case "quotaExceeded", "dailyLimitExceeded":
				return classQuotaExceeded
			case "rateLimitExceeded", "userRateLimitExceeded":
				return classRateLimited
			}
		}
		switch {
		case apiErr.Code == 429:
			return classRateLimited
		case apiErr.Code >= 500:
			return classTransient
		}
		return classOther
	}

	if isTransient(err) {
		return classTransient
	}
	return classOther
}

// isTransient recognizes network failures presumed recoverable by retrying:
// timeouts, resets, and TLS handshake hiccups.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "tls") ||
		strings.Contains(msg, "ssl") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "eof occurred")
}
