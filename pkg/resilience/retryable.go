package resilience

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"regexp"
	"strconv"

	"github.com/lib/pq"
)

// The OpenAI-compatible embedding client reports HTTP failures only as
// text, e.g. "API returned unexpected status code: 503: ...".
var statusCode = regexp.MustCompile(`status code:? (\d{3})`)

// Retryable reports whether err is transient: connection failures,
// timeouts, PostgreSQL errors a retry can clear, and embedder responses
// with status 408, 429 or 5xx. Caller cancellation, an open breaker,
// other PostgreSQL errors and other 4xx responses are permanent. Errors
// it cannot place are treated as transient.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return retryableSQLState(string(pqErr.Code))
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if m := statusCode.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code == 408 || code == 429 || code >= 500
	}
	return true
}

// retryableSQLState covers connection exceptions (08), insufficient
// resources (53), operator intervention such as an admin shutdown (57P01
// to 57P03), serialization failures and deadlocks.
func retryableSQLState(code string) bool {
	switch code {
	case "40001", "40P01", "57P01", "57P02", "57P03":
		return true
	}
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "08", "53":
		return true
	}
	return false
}
