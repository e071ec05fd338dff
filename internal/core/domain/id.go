package domain

import (
	"github.com/google/uuid"
)

// SessionHandle is the opaque identifier returned by InitializeVideoCall.
type SessionHandle string

func NewSessionHandle() SessionHandle {
	return SessionHandle(uuid.New().String())
}

func (h SessionHandle) String() string {
	return string(h)
}

type ListenerID uuid.UUID

func NewListenerID() ListenerID {
	return ListenerID(uuid.New())
}

func ParseListenerID(s string) (ListenerID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ListenerID{}, err
	}
	return ListenerID(id), nil
}

func (id ListenerID) String() string {
	return uuid.UUID(id).String()
}

// CaptureToken is a one-shot screen capture grant handed out by the OS.
type CaptureToken string

func NewCaptureToken() CaptureToken {
	return CaptureToken(uuid.New().String())
}
