// Package errs defines the error taxonomy shared by every node-management
// component: invalid input, not-found, service-manager failure, registry
// corruption, build failure, and transport failure (see design notes on
// propagation policy).
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInvalidInput Kind = iota
	KindNotFound
	KindServiceManager
	KindRegistryCorrupt
	KindBuildFailure
	KindTransport
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindServiceManager:
		return "service_manager"
	case KindRegistryCorrupt:
		return "registry_corrupt"
	case KindBuildFailure:
		return "build_failure"
	case KindTransport:
		return "transport"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// HTTPStatus maps an error Kind onto the status code the REST surface
// reports; the taxonomy and the transport are deliberately decoupled, this
// is the one place they meet.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return 400
	case KindNotFound:
		return 404
	case KindBusy:
		return 409
	case KindServiceManager, KindBuildFailure, KindRegistryCorrupt, KindTransport:
		return 500
	default:
		return 500
	}
}

// E is the uniform error type every component returns; the command
// dispatcher never lets a component-specific error escape unconverted.
type E struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *E) Unwrap() error { return e.Err }

func New(kind Kind, format string, a ...any) *E {
	return &E{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

func Wrap(kind Kind, err error, format string, a ...any) *E {
	return &E{Kind: kind, Msg: fmt.Sprintf(format, a...), Err: err}
}

func InvalidInput(format string, a ...any) *E { return New(KindInvalidInput, format, a...) }
func NotFound(format string, a ...any) *E     { return New(KindNotFound, format, a...) }
func Busy(format string, a ...any) *E         { return New(KindBusy, format, a...) }

func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
