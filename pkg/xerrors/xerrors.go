// Package xerrors carries HTTP status codes on errors which cross the
// status API.
package xerrors

import (
	"errors"
	"io"
	"net/http"
	"strings"
)

// StatusError is an error with a status code.
type StatusError struct {
	StatusCode int
	Msg        string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return e.Msg
}

// New constructs a StatusError.
func New(code int, msg string) error {
	return &StatusError{StatusCode: code, Msg: msg}
}

// FromHTTPResponse constructs a StatusError from an HTTP error response.
func FromHTTPResponse(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Msg:        strings.TrimSpace(string(msg)),
	}
}

// Wrap wraps an error with a status code. An error which already carries a
// status code is returned unchanged.
func Wrap(err error, code int) error {
	if err == nil {
		return nil
	}

	se := &StatusError{}
	if errors.As(err, &se) {
		return se
	}

	return &StatusError{StatusCode: code, Msg: err.Error()}
}
