package ocr

import (
	"errors"
	"fmt"
)

// NetworkErrorMessage is reported when a request was sent but no response came back
const NetworkErrorMessage = "Network error or server not reachable"

// ServerError is a non-2xx response from the OCR service
type ServerError struct {
	StatusCode int
	// ErrorText and MessageText hold the optional "error" and "message"
	// fields of the JSON error body.
	ErrorText   string
	MessageText string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("ocr server returned status %d", e.StatusCode)
}

// TransportError is a failure to get any response. Sent is false when the
// request never left the client.
type TransportError struct {
	Sent bool
	Err  error
}

func (e *TransportError) Error() string {
	if e.Sent {
		return fmt.Sprintf("sending ocr request: %v", e.Err)
	}
	return fmt.Sprintf("building ocr request: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Message derives the user-facing text for a failed upload. Precedence:
// server "error" field, server "message" field, status code, network
// failure, then the raw error text.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		switch {
		case serverErr.ErrorText != "":
			return serverErr.ErrorText
		case serverErr.MessageText != "":
			return serverErr.MessageText
		default:
			return fmt.Sprintf("Server error: %d", serverErr.StatusCode)
		}
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Sent {
			return NetworkErrorMessage
		}
		return transportErr.Err.Error()
	}

	if errors.Is(err, ErrInvalidResponse) {
		return "Invalid OCR response: " + trimSentinel(err)
	}

	return err.Error()
}

func trimSentinel(err error) string {
	msg := err.Error()
	prefix := ErrInvalidResponse.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
