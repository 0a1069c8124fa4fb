package errtag

import (
	"errors"
	"fmt"
)

type Option func(m *tagMeta)

func WithMsg(message string) Option {
	return func(t *tagMeta) {
		t.msg = message
	}
}

func WithMsgf(format string, a ...any) Option {
	return func(t *tagMeta) {
		t.msg = fmt.Sprintf(format, a...)
	}
}

func WithDetails(details ...string) Option {
	return func(t *tagMeta) {
		t.details = details
	}
}

// Tagger is an error carrying a SQLSTATE code, a caller facing message and
// optional details.
type Tagger interface {
	error
	Code() string
	Msg() string
	Details() []string
}

type TaggerPtr[T any] interface {
	*T
	init(cause error, opts ...Option)
}

// Tag wraps cause in the tag T. The returned tag unwraps to cause.
func Tag[T Tagger, TP TaggerPtr[T]](cause error, opts ...Option) T {
	var t T
	TP(&t).init(cause, opts...)
	return t
}

func NewTagged[T Tagger, TP TaggerPtr[T]](cause string, opts ...Option) error {
	var t T
	TP(&t).init(errors.New(cause), opts...)
	return t
}

type Coder interface {
	Code() string
	Text() string
}

// ErrorTag is embedded by concrete tag types. Packages outside errtag declare
// their own tags by embedding ErrorTag with one of the exported coders.
type ErrorTag[C Coder] struct {
	tagMeta
}

type tagMeta struct {
	cause   error
	msg     string
	details []string
}

func (t ErrorTag[C]) Error() string {
	if t.cause == nil {
		return t.Msg()
	}
	return t.cause.Error()
}

func (t ErrorTag[C]) Cause() error {
	return t.cause
}

func (t ErrorTag[C]) Unwrap() error {
	return t.cause
}

func (t ErrorTag[C]) Code() string {
	var c C
	return c.Code()
}

func (t ErrorTag[C]) Msg() string {
	if t.msg == "" {
		var c C
		return c.Text()
	}
	return t.msg
}

func (t ErrorTag[C]) Details() []string {
	return t.details
}

func (t *ErrorTag[C]) init(cause error, opts ...Option) {
	t.cause = cause
	for _, opt := range opts {
		opt(&t.tagMeta)
	}
}

func HasTag[T Tagger](err error) bool {
	_, ok := AsTag[T](err)
	return ok
}

func AsTag[T Tagger](err error) (T, bool) {
	var out T
	if err == nil {
		return out, false
	}
	ok := errors.As(err, &out)
	return out, ok
}

// CodeOf returns the SQLSTATE code of the first tag in err's chain, or an
// empty string when err carries no tag.
func CodeOf(err error) string {
	var c interface{ Code() string }
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}
