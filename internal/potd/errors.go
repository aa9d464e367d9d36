package potd

import (
	"errors"
	"fmt"
	"strings"
)

// RequestError represents network failures and unexpected HTTP responses while talking
// to the metadata endpoint or downloading the picture.
type RequestError struct {
	Operation  string // The operation that failed (e.g., "resolve_url", "download")
	URL        string // The requested URL
	StatusCode int    // HTTP status code, if applicable (0 for transport errors)
	Err        error  // Underlying error, if any
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("request error during %s of %s (HTTP %d)", e.Operation, e.URL, e.StatusCode)
	}

	return fmt.Sprintf("request error during %s of %s: %v", e.Operation, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the request may succeed.
func (e *RequestError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// DecodeError represents a metadata body that is not a JSON object of strings.
type DecodeError struct {
	Endpoint string // The endpoint that returned the body
	Err      error  // Underlying error, if any
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode metadata from %s: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MissingFieldError represents a metadata document without the expected field.
type MissingFieldError struct {
	Endpoint string
	Field    string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("metadata from %s has no %q field", e.Endpoint, e.Field)
}

// FileCreateError represents a failure to create the destination file.
type FileCreateError struct {
	Path string
	Err  error
}

func (e *FileCreateError) Error() string {
	return fmt.Sprintf("failed to create file %s: %v", e.Path, e.Err)
}

func (e *FileCreateError) Unwrap() error {
	return e.Err
}

// BodyReadError represents a failure while reading the response body mid-transfer.
type BodyReadError struct {
	URL string
	Err error
}

func (e *BodyReadError) Error() string {
	return fmt.Sprintf("failed to read body of %s: %v", e.URL, e.Err)
}

func (e *BodyReadError) Unwrap() error {
	return e.Err
}

// WriteError represents a failure to write the downloaded bytes to disk.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write file %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IOError represents directory creation, walk and rename failures.
type IOError struct {
	Op   string // "mkdir", "walk", "rename" or "lock"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// RotationError collects every file that could not be moved during a rotation.
type RotationError struct {
	Failures []*IOError
}

func (e *RotationError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}

	return fmt.Sprintf("failed to archive %d file(s): %s", len(e.Failures), strings.Join(msgs, "; "))
}

func (e *RotationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}

	return errs
}

// ErrCycleInProgress is returned when another cycle holds the rotation lock.
var ErrCycleInProgress = errors.New("another cycle is already running")

// Exit codes used by the command line.
const (
	ExitOK = iota
	ExitUnknown
	ExitConfig
	ExitRequest
	ExitMetadata
	ExitFilesystem
	ExitLocked
)

// ExitCode maps an error returned by a cycle to a process exit code.
func ExitCode(err error) int {
	var (
		reqErr     *RequestError
		decodeErr  *DecodeError
		missingErr *MissingFieldError
		createErr  *FileCreateError
		readErr    *BodyReadError
		writeErr   *WriteError
		ioErr      *IOError
	)

	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrCycleInProgress):
		return ExitLocked
	case errors.As(err, &reqErr):
		return ExitRequest
	case errors.As(err, &decodeErr), errors.As(err, &missingErr):
		return ExitMetadata
	case errors.As(err, &createErr), errors.As(err, &readErr), errors.As(err, &writeErr), errors.As(err, &ioErr):
		return ExitFilesystem
	default:
		return ExitUnknown
	}
}
