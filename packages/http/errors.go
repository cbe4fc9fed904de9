package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

const (
	NetworkErrorStatusText = "Network Error"

	MessageTimeout   = "Request timeout - The request took too long to complete"
	MessageCancelled = "Request cancelled - The request was aborted before it completed"
	MessageNetwork   = "Network error - Unable to connect to the server. Check your internet connection or if the server is running."
)

var (
	// ErrDispatchInFlight is returned when a request id already has an
	// outstanding dispatch.
	ErrDispatchInFlight = errors.New("dispatch already in flight for request")
)

// FailureKind classifies a transport failure.
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureTimeout
	FailureCancelled
	FailureConnectivity
)

// ParseFailureKind is the inverse of FailureKind.String.
func ParseFailureKind(s string) FailureKind {
	switch s {
	case "timeout":
		return FailureTimeout
	case "cancelled":
		return FailureCancelled
	case "connectivity":
		return FailureConnectivity
	default:
		return FailureOther
	}
}

// RelayFailure is a transport failure the relay hit while calling upstream.
type RelayFailure struct {
	Kind    FailureKind
	Message string
}

func (e *RelayFailure) Error() string {
	return fmt.Sprintf("relay upstream %s: %s", e.Kind, e.Message)
}

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureCancelled:
		return "cancelled"
	case FailureConnectivity:
		return "connectivity"
	default:
		return "other"
	}
}

// ClassifyError maps a dispatch error to a FailureKind and the message shown
// as the sentinel response body.
func ClassifyError(err error) (FailureKind, string) {
	if err == nil {
		return FailureOther, ""
	}

	var relayErr *RelayFailure
	if errors.As(err, &relayErr) {
		return relayErr.Kind, relayErr.Message
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout, MessageTimeout
	case errors.Is(err, context.Canceled):
		return FailureCancelled, MessageCancelled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout, MessageTimeout
	}
	if isConnectivityError(err) {
		return FailureConnectivity, MessageNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return FailureOther, urlErr.Err.Error()
	}
	return FailureOther, err.Error()
}

func isConnectivityError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}

// NetworkErrorResponse builds the status-0 sentinel for a failed dispatch.
func NetworkErrorResponse(message string, elapsed time.Duration) model.ResponseData {
	return model.ResponseData{
		Status:     0,
		StatusText: NetworkErrorStatusText,
		Headers:    map[string]string{},
		Body:       message,
		Time:       elapsed.Milliseconds(),
		Size:       0,
	}
}
