package scanner

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// Reason categorizes why a path was skipped
type Reason int

const (
	ReasonPermissionDenied Reason = iota
	ReasonNotFound
	ReasonLoopDetected
	ReasonIO
	ReasonUnknown
)

// String returns a human-readable reason
func (r Reason) String() string {
	switch r {
	case ReasonPermissionDenied:
		return "permission denied"
	case ReasonNotFound:
		return "not found"
	case ReasonLoopDetected:
		return "loop detected"
	case ReasonIO:
		return "io error"
	default:
		return "unknown error"
	}
}

// MarshalText renders the reason by name in JSON and YAML reports.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Operations a Warning can originate from.
const (
	OpReadDir = "readdir"
	OpStat    = "stat"
	OpHash    = "hash"
	OpVisit   = "visit"
	OpCache   = "cache"
)

// ErrLoopDetected marks a directory that was already visited through another path.
var ErrLoopDetected = errors.New("directory already visited")

// Warning is a structured record of a skipped path.
type Warning struct {
	Path    string `json:"path" yaml:"path"`
	Op      string `json:"op" yaml:"op"`
	Reason  Reason `json:"reason" yaml:"reason"`
	Message string `json:"message" yaml:"message"`
}

// String implements fmt.Stringer
func (w Warning) String() string {
	return fmt.Sprintf("%s %s: %s (%s)", w.Op, w.Path, w.Reason, w.Message)
}

// NewWarning builds a Warning for path, categorizing err.
func NewWarning(path, op string, err error) Warning {
	w := Warning{
		Path:   path,
		Op:     op,
		Reason: Categorize(err),
	}
	if err != nil {
		w.Message = err.Error()
	}
	return w
}

// Categorize maps an error onto a Reason.
func Categorize(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}

	if errors.Is(err, ErrLoopDetected) {
		return ReasonLoopDetected
	}
	if os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
		return ReasonNotFound
	}
	if os.IsPermission(err) || errors.Is(err, os.ErrPermission) {
		return ReasonPermissionDenied
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EACCES, syscall.EPERM:
			return ReasonPermissionDenied
		case syscall.ENOENT, syscall.ENOTDIR:
			return ReasonNotFound
		case syscall.ELOOP:
			return ReasonLoopDetected
		case syscall.EIO:
			return ReasonIO
		}
	}

	return ReasonUnknown
}
