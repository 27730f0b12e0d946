package epub

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the epub package.
var (
	// ErrInvalidEPub indicates the archive is missing a structural component
	// (container.xml, rootfile, package document, metadata or title).
	// Every *ParseError of kind KindInvalidStructure matches it with errors.Is.
	ErrInvalidEPub = errors.New("epub: invalid ePub file")

	// ErrFileNotFound indicates the requested file does not exist
	// in the ePub archive.
	ErrFileNotFound = errors.New("epub: file not found in archive")

	// ErrNoCover indicates no cover image could be detected
	// using any of the supported strategies.
	ErrNoCover = errors.New("epub: no cover image found")

	// ErrNoChapters indicates every chapter candidate was skipped.
	ErrNoChapters = errors.New("epub: no readable chapters")

	// ErrAlreadyAttached is returned by Book.WithNavigation and
	// Book.WithResources when the component was attached before.
	ErrAlreadyAttached = errors.New("epub: component already attached")

	// ErrNilArgument reports a programmer error such as a nil reader.
	ErrNilArgument = errors.New("epub: nil argument")

	// ErrInvalidRange reports a negative offset or length, or an offset
	// beyond the end of the resource, in a partial read.
	ErrInvalidRange = errors.New("epub: invalid byte range")

	// ErrClosed is returned by readers used after Close.
	ErrClosed = errors.New("epub: reader closed")
)

// ErrorKind classifies a ParseError.
type ErrorKind int

const (
	// KindInvalidStructure means a required component is absent.
	KindInvalidStructure ErrorKind = iota + 1
	// KindParsingFailed means reading or decoding failed; Err holds the cause.
	KindParsingFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidStructure:
		return "invalid structure"
	case KindParsingFailed:
		return "parsing failed"
	default:
		return "unknown"
	}
}

// ParseError is the error value returned by every parse entry point for
// expected failure modes.
type ParseError struct {
	Kind ErrorKind

	// Component names the missing piece for KindInvalidStructure
	// (e.g. "container.xml", "rootfile", "package document", "metadata", "title").
	Component string

	// Context carries where the problem was found, typically an archive path.
	Context string

	// Message describes a KindParsingFailed error.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case KindInvalidStructure:
		msg := "epub: missing " + e.Component
		if e.Context != "" {
			msg += " (" + e.Context + ")"
		}
		return msg
	default:
		if e.Err != nil {
			return fmt.Sprintf("epub: %s: %v", e.Message, e.Err)
		}
		return "epub: " + e.Message
	}
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrInvalidEPub for structural errors.
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidEPub && e.Kind == KindInvalidStructure
}

// MissingComponent returns the component name when err is a structural
// ParseError, and false otherwise.
func MissingComponent(err error) (string, bool) {
	var pe *ParseError
	if errors.As(err, &pe) && pe.Kind == KindInvalidStructure {
		return pe.Component, true
	}
	return "", false
}

func structuralError(component, context string) *ParseError {
	return &ParseError{Kind: KindInvalidStructure, Component: component, Context: context}
}

func parsingFailed(message string, err error) *ParseError {
	return &ParseError{Kind: KindParsingFailed, Message: message, Err: err}
}

// asParseError keeps ParseErrors intact and wraps anything else.
func asParseError(message string, err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	return parsingFailed(message, err)
}

// ValidationError accumulates every structural problem found by a
// validation pass.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	switch len(e.Problems) {
	case 0:
		return "epub: validation failed"
	case 1:
		return "epub: validation failed: " + e.Problems[0]
	default:
		return fmt.Sprintf("epub: validation failed with %d problems: %s",
			len(e.Problems), strings.Join(e.Problems, "; "))
	}
}
