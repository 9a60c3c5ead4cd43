package fault

import (
	"errors"
	"fmt"
	"strings"
)

// DeviceError reports that the audio device is unavailable or failed.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string { return fmt.Sprintf("device: %s: %v", e.Op, e.Err) }
func (e *DeviceError) Unwrap() error { return e.Err }

// PermissionError reports that access to the microphone was denied.
type PermissionError struct {
	Op  string
	Err error
}

func (e *PermissionError) Error() string { return fmt.Sprintf("permission: %s: %v", e.Op, e.Err) }
func (e *PermissionError) Unwrap() error { return e.Err }

// NetworkError reports a transport-level failure of the duplex session.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network: %s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError reports an inbound message that could not be parsed.
type ProtocolError struct {
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol: %s", e.Detail)
	}
	return fmt.Sprintf("protocol: %s: %v", e.Detail, e.Err)
}
func (e *ProtocolError) Unwrap() error { return e.Err }

// DecodeError reports an audio payload that could not be decoded.
type DecodeError struct {
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode: %s", e.Detail)
	}
	return fmt.Sprintf("decode: %s: %v", e.Detail, e.Err)
}
func (e *DecodeError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsLocalDevice reports whether err is a capture-side failure that is fatal
// to the session.
func IsLocalDevice(err error) bool {
	var de *DeviceError
	var pe *PermissionError
	return errors.As(err, &de) || errors.As(err, &pe)
}

// ClassifyDevice wraps an audio backend error as a PermissionError when the
// backend message indicates denied access, and as a DeviceError otherwise.
func ClassifyDevice(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"permission", "denied", "not permitted", "not authorized"} {
		if strings.Contains(msg, hint) {
			return &PermissionError{Op: op, Err: err}
		}
	}
	return &DeviceError{Op: op, Err: err}
}

// UserMessage returns the text shown to the person when err ends a session.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		pe *PermissionError
		de *DeviceError
		ne *NetworkError
		pr *ProtocolError
	)
	switch {
	case errors.As(err, &pe):
		return "Microphone access was denied. Allow microphone access and start a new session."
	case errors.As(err, &de):
		return "No usable microphone or speaker was found. Check your audio devices and start a new session."
	case errors.As(err, &ne):
		return "Lost connection to the conversation service. Start a new session to try again."
	case errors.As(err, &pr):
		return "The conversation service sent a message that could not be understood."
	default:
		return "The session ended unexpectedly."
	}
}
