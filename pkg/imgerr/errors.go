// Package imgerr defines the error taxonomy shared by the pipeline builder,
// the governor and the processing engine.
//
// Every error type matches a sentinel through errors.Is so callers can branch on
// the category without type assertions:
//
//	if errors.Is(err, imgerr.ErrTimeout) {
//	    // retry
//	}
//
// ConfigurationError is produced while chaining (bad argument), InputError while
// resolving input and output locations, EngineError when the processing engine
// fails and TimeoutError when the configured deadline elapses. Warning is not an
// error; it travels through warning observers only.
package imgerr

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/pkg/errors"
)

// Category sentinels.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrInput         = errors.New("input error")
	ErrEngine        = errors.New("engine error")
	ErrTimeout       = errors.New("timeout")
)

// Input kind sentinels.
var (
	ErrMissingFile       = errors.New("input file is missing")
	ErrEmptyInput        = errors.New("input is empty")
	ErrUnsupportedInput  = errors.New("unsupported image format")
	ErrCorruptInput      = errors.New("corrupt image data")
	ErrSameFile          = errors.New("same file for input and output")
	ErrEmptyOutputPath   = errors.New("missing output file path")
	ErrPixelLimit        = errors.New("input image exceeds pixel limit")
	ErrDimensionLimit    = errors.New("image exceeds dimension limit")
	ErrUnsupportedOutput = errors.New("unsupported output format")
)

// ConfigurationError reports a malformed argument to a chained call or constructor.
type ConfigurationError struct {
	Param    string
	Expected string
	Value    interface{}
	// Msg replaces the generated message when set.
	Msg string
}

func (e *ConfigurationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("Expected %s for %s but received %v of type %T", e.Expected, e.Param, e.Value, e.Value)
}

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Invalid builds the standard parameter error.
func Invalid(param, expected string, value interface{}) error {
	return &ConfigurationError{Param: param, Expected: expected, Value: value}
}

// Configf builds a configuration error with a free-form message.
func Configf(param, format string, args ...interface{}) error {
	return &ConfigurationError{Param: param, Msg: fmt.Sprintf(format, args...)}
}

// Kind classifies an InputError.
type Kind int

const (
	MissingFile Kind = iota + 1
	EmptyInput
	UnsupportedInput
	CorruptInput
	SameFile
	EmptyOutputPath
	PixelLimit
	DimensionLimit
	UnsupportedOutput
)

var kindSentinels = map[Kind]error{
	MissingFile:       ErrMissingFile,
	EmptyInput:        ErrEmptyInput,
	UnsupportedInput:  ErrUnsupportedInput,
	CorruptInput:      ErrCorruptInput,
	SameFile:          ErrSameFile,
	EmptyOutputPath:   ErrEmptyOutputPath,
	PixelLimit:        ErrPixelLimit,
	DimensionLimit:    ErrDimensionLimit,
	UnsupportedOutput: ErrUnsupportedOutput,
}

func (k Kind) String() string {
	if err, ok := kindSentinels[k]; ok {
		return err.Error()
	}
	return "unknown input error"
}

// InputError reports a failure to resolve input bytes or the output location.
type InputError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *InputError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *InputError) Unwrap() error { return e.Err }

// Is matches ErrInput and the sentinel of the error's kind.
func (e *InputError) Is(target error) bool {
	if target == ErrInput {
		return true
	}
	return kindSentinels[e.Kind] == target
}

// Inputf builds an InputError of the given kind.
func Inputf(kind Kind, format string, args ...interface{}) error {
	return &InputError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapInput builds an InputError around a cause.
func WrapInput(kind Kind, err error, msg string) error {
	return &InputError{Kind: kind, Msg: msg, Err: err}
}

// EngineError carries a processing engine failure. Error returns the engine
// diagnostic verbatim; %+v additionally prints the stack of the call that
// requested output.
type EngineError struct {
	Op         string
	Diagnostic string
	Err        error
	stack      errors.StackTrace
}

func (e *EngineError) Error() string { return e.Diagnostic }

func (e *EngineError) Unwrap() error { return e.Err }

// Is matches ErrEngine.
func (e *EngineError) Is(target error) bool { return target == ErrEngine }

// StackTrace returns the call site stack recorded for this failure.
func (e *EngineError) StackTrace() errors.StackTrace { return e.stack }

// Format implements fmt.Formatter.
func (e *EngineError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = io.WriteString(s, e.Diagnostic)
			if e.Op != "" {
				_, _ = fmt.Fprintf(s, " (%s)", e.Op)
			}
			e.stack.Format(s, verb)
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// TimeoutError reports that processing exceeded the configured deadline.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: processing exceeded %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Is matches ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// CallSite is a captured caller stack used to anchor engine failures at the
// method the caller invoked rather than at dispatch internals.
type CallSite struct {
	stack errors.StackTrace
}

// Anchor records the stack of its caller's caller, skipping skip extra frames.
func Anchor(skip int) CallSite {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3+skip, pcs)
	stack := make(errors.StackTrace, n)
	for i := 0; i < n; i++ {
		stack[i] = errors.Frame(pcs[i])
	}
	return CallSite{stack: stack}
}

// Engine wraps err as an EngineError anchored at the call site. Errors already
// classified by this package are returned unchanged.
func (c CallSite) Engine(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &EngineError{Op: op, Diagnostic: err.Error(), Err: err, stack: c.stack}
}

// Classified reports whether err already belongs to one of the taxonomy categories.
func Classified(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrInput) ||
		errors.Is(err, ErrEngine) || errors.Is(err, ErrTimeout)
}

// Warning is a non-fatal notice such as an overwritten operation.
type Warning struct {
	Op      string
	Message string
}

func (w Warning) String() string {
	if w.Op == "" {
		return w.Message
	}
	return w.Op + ": " + w.Message
}

// Warnf builds a Warning.
func Warnf(op, format string, args ...interface{}) Warning {
	return Warning{Op: op, Message: fmt.Sprintf(format, args...)}
}
