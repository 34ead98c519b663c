package httpclient

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failed request.
type Kind int

const (
	// KindTerminalAuth is a 401 that re-authentication could not fix.
	KindTerminalAuth Kind = iota + 1
	// KindBusiness is a successful HTTP exchange whose envelope reports failure.
	KindBusiness
	// KindClientHTTP is a 4xx other than an auth failure.
	KindClientHTTP
	// KindServerHTTP is a 5xx or an unreadable success response.
	KindServerHTTP
	// KindNetwork means no response was received.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindTerminalAuth:
		return "terminal_auth"
	case KindBusiness:
		return "business"
	case KindClientHTTP:
		return "client_http"
	case KindServerHTTP:
		return "server_http"
	case KindNetwork:
		return "network"
	}
	return "unknown"
}

// Display messages for failures without a server-supplied message.
const (
	MessageNetwork          = "Network unreachable, please check your connection"
	MessageTimeout          = "Request timed out"
	MessageCancelled        = "Request cancelled"
	MessageBusinessDefault  = "Operation failed"
	MessageSessionExpired   = "Session expired, please log in again"
	MessageTooManyPending   = "Too many pending requests, please try again"
	MessageUnexpectedReply  = "Unexpected response from server"
	messageRequestFailedFmt = "Request failed (%d)"
)

var statusMessages = map[int]string{
	400: "Invalid request parameters",
	401: "Unauthorized, please log in again",
	403: "You do not have permission to access this resource",
	404: "The requested resource does not exist",
	405: "Request method not allowed",
	408: "Request timed out",
	409: "Resource conflict",
	413: "Request body too large",
	422: "Request format error",
	429: "Too many requests, please try again later",
	500: "The server is busy, please try again later",
	502: "Bad gateway",
	503: "Service unavailable",
	504: "Gateway timeout",
}

// StatusMessage is the fixed display text for an HTTP status.
func StatusMessage(status int) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return fmt.Sprintf(messageRequestFailedFmt, status)
}

// Error is every failure returned by Client.Do. Message is ready for display.
type Error struct {
	Kind    Kind
	Status  int // HTTP status, 0 when no response arrived
	Code    int // envelope code for business errors
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// DisplayMessage is the text to show the user.
func (e *Error) DisplayMessage() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
