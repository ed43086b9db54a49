package cubez

import "fmt"

// Status is a result-code kind, mirroring the closed enumeration of error
// conditions the engine core can surface. It is comparable so callers can
// switch on it directly, and it implements error so it composes with
// errors.Is/errors.As once wrapped with a cause via newStatusError.
type Status int

const (
	// StatusOK indicates success. No operation returns it: success is
	// reported as a nil error.
	StatusOK Status = iota
	StatusUnknownProgram
	StatusUnknownComponent
	StatusUnknownEvent
	StatusUnknownEntity
	StatusAttrIncomplete
	StatusInvalidJoin
	StatusEventQueueFull
	StatusNotRunning
	StatusReentrantSend
)

var statusText = map[Status]string{
	StatusOK:               "ok",
	StatusUnknownProgram:   "unknown program",
	StatusUnknownComponent: "unknown component",
	StatusUnknownEvent:     "unknown event",
	StatusUnknownEntity:    "unknown entity",
	StatusAttrIncomplete:   "attr incomplete",
	StatusInvalidJoin:      "invalid join",
	StatusEventQueueFull:   "event queue full",
	StatusNotRunning:       "not running",
	StatusReentrantSend:    "reentrant send",
}

// String returns the status's fixed diagnostic name.
func (s Status) String() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Error implements error so a bare Status can be returned and compared with
// errors.Is against the exported sentinels below.
func (s Status) Error() string {
	return s.String()
}

// Exported sentinel errors, one per non-OK Status, for errors.Is comparisons.
var (
	ErrUnknownProgram   error = StatusUnknownProgram
	ErrUnknownComponent error = StatusUnknownComponent
	ErrUnknownEvent     error = StatusUnknownEvent
	ErrUnknownEntity    error = StatusUnknownEntity
	ErrAttrIncomplete   error = StatusAttrIncomplete
	ErrInvalidJoin      error = StatusInvalidJoin
	ErrEventQueueFull   error = StatusEventQueueFull
	ErrNotRunning       error = StatusNotRunning
	ErrReentrantSend    error = StatusReentrantSend
)

// statusError wraps a Status with a formatted cause, so error messages stay
// specific ("unknown component: id 42") while errors.Is(err, ErrUnknownComponent)
// still holds.
type statusError struct {
	status Status
	detail string
}

func (e *statusError) Error() string {
	if e.detail == "" {
		return e.status.String()
	}
	return fmt.Sprintf("%s: %s", e.status, e.detail)
}

func (e *statusError) Is(target error) bool {
	return target == error(e.status)
}

func (e *statusError) Unwrap() error {
	return e.status
}

func newStatusError(status Status, format string, args ...any) error {
	return &statusError{status: status, detail: fmt.Sprintf(format, args...)}
}
