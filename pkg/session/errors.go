package session

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed rejects requests still pending when the connection
	// ends, and is the context cause of a locally closed connection.
	ErrConnectionClosed = errors.New("session: connection closed")

	// ErrUnsupportedMessage is fatal: the relay sent a message this client
	// decodes but does not implement (the Fetch and Publish families).
	ErrUnsupportedMessage = errors.New("session: unsupported message")

	// ErrUnexpectedSetup is fatal: a setup message arrived after the
	// handshake.
	ErrUnexpectedSetup = errors.New("session: unexpected setup message")

	// ErrUnknownTrack aborts a single object stream whose request id matches
	// no subscription.
	ErrUnknownTrack = errors.New("session: unknown track")

	ErrBroadcastExists = errors.New("session: broadcast already published")
)

// SubscribeError is the relay's refusal of a subscription.
type SubscribeError struct {
	Code   uint64
	Reason string
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("subscribe error: code=%d reason=%s", e.Code, e.Reason)
}

// PublishDoneError ends a live subscription with a non-success status.
type PublishDoneError struct {
	Code   uint64
	Reason string
}

func (e *PublishDoneError) Error() string {
	return fmt.Sprintf("publish done: code=%d reason=%s", e.Code, e.Reason)
}

// RequestError is the relay's refusal of a namespace request.
type RequestError struct {
	Kind   string
	Code   uint64
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: code=%d reason=%s", e.Kind, e.Code, e.Reason)
}
