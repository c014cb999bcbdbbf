package resy

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrRejected means /3/book answered without booking. Under load the
	// service rejects valid book tokens transiently, so callers may retry.
	ErrRejected = errors.New("booking rejected")

	ErrNoPaymentMethod = errors.New("account has no payment method")
)

type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
	Body    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("resy %s %s -> %d: %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("resy %s %s -> %d body=%q", e.Method, e.Path, e.Code, e.Body)
}

func newStatusError(method, path string, code int, body []byte) *StatusError {
	// resy puts a human readable reason in "message" when it has one
	var r struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &r)
	b := string(body)
	if len(b) > 256 {
		b = b[:256]
	}
	return &StatusError{Method: method, Path: path, Code: code, Message: r.Message, Body: b}
}
