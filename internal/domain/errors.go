package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrBusy                  = errors.New("another request is already in progress")
	ErrProviderNotConfigured = errors.New("provider is not configured")
	ErrEmptyInput            = errors.New("message is empty")
	ErrSessionNotFound       = errors.New("session not found")
	ErrMessageNotFound       = errors.New("message not found")
	ErrAttachmentNotFound    = errors.New("attachment not found")
	ErrActionNotFound        = errors.New("action not found")
	ErrNoImageProposal       = errors.New("message has no image proposal")
	ErrProposalSpent         = errors.New("image proposal already generated")
	ErrNoWorkflow            = errors.New("message has no workflow proposal")
	ErrNodeNotFound          = errors.New("node not found")
	ErrUnknownNodeType       = errors.New("unknown node type")
	ErrInvalidRatio          = errors.New("invalid ratio")
	ErrQuotaExceeded         = errors.New("storage quota exceeded")
	ErrKeyNotFound           = errors.New("key not found")
)

// TransportError is a failed call to a remote collaborator: a non-2xx
// status or a body that could not be decoded.
type TransportError struct {
	Status  int
	Message string
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// TimeoutError is a transport error raised when a call exceeds its bound.
type TimeoutError struct {
	Bound time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.Bound)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}
