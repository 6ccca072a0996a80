package chat

import (
	"errors"
	"fmt"
)

// ErrEmptyMessage is returned when a chat request carries no text after trimming.
var ErrEmptyMessage = errors.New("chat: message must not be empty")

// Error is a non-2xx reply from the assistant API.
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("chat api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("chat api error %d", e.Status)
}

// IsAPIError reports whether err is an assistant API error and returns it.
func IsAPIError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
