package scenefile

import (
	"fmt"
	"strings"

	"golang.org/x/xerrors"
)

// Kind classifies scene file errors.
type Kind int

const (
	InvalidVector Kind = iota + 1
	InvalidFile
	ParallelCoords
	InvalidFOV
	InvalidDims
	InvalidSceneFile
	InvalidColor
	InvalidConstant
)

func (k Kind) String() string {
	switch k {
	case InvalidVector:
		return "The vector must have nonzero length."
	case InvalidFile:
		return "Could not read file."
	case ParallelCoords:
		return "The up and view_dir cannot be parallel."
	case InvalidFOV:
		return "The field of view must be strictly lesser than 180."
	case InvalidDims:
		return "The dimensions of the image must be positive."
	case InvalidSceneFile:
		return "The scene file is invalid."
	case InvalidColor:
		return "The color is invalid."
	case InvalidConstant:
		return "The constant is invalid."
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned for every problem found while reading a scene.  Line is
// 1-based, or 0 for problems with the scene as a whole.
type Error struct {
	Kind    Kind
	Line    int
	Message string

	inner error
	frame xerrors.Frame
}

func newError(kind Kind, line int, inner error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
		inner:   inner,
		frame:   xerrors.Caller(1),
	}
}

func (e *Error) summary() string {
	b := &strings.Builder{}
	if e.Line > 0 {
		fmt.Fprintf(b, "line %d: ", e.Line)
	}
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		fmt.Fprintf(b, " (%s)", e.Message)
	}
	return b.String()
}

func (e *Error) Error() string {
	if e.inner == nil {
		return e.summary()
	}
	return fmt.Sprintf("%s: %v", e.summary(), e.inner)
}

func (e *Error) Format(f fmt.State, c rune) { // implements fmt.Formatter
	xerrors.FormatError(e, f, c)
}

func (e *Error) FormatError(p xerrors.Printer) error { // implements xerrors.Formatter
	p.Print(e.summary())
	if p.Detail() {
		e.frame.Format(p)
	}
	return e.inner
}

func (e *Error) Unwrap() error {
	return e.inner
}
