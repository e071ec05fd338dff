package domain

type EventKind string

const (
	EventCallJoined EventKind = "callJoined"
	EventCallEnded  EventKind = "callEnded"
)

func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case EventCallJoined, EventCallEnded:
		return EventKind(s), nil
	}
	return "", &ValidationError{Field: "event"}
}

// Event is a lifecycle notification. UserID is empty for callEnded.
type Event struct {
	Kind   EventKind
	CallID string
	UserID string
}

type NoticeKind string

const (
	NoticePermissionDenied            NoticeKind = "permission_denied"
	NoticePermissionPermanentlyDenied NoticeKind = "permission_permanently_denied"
	NoticeSettingsOpened              NoticeKind = "settings_opened"
	NoticeScreenShareRefused          NoticeKind = "screen_share_refused"
)

// Notice is a transient, non-fatal message meant for the user (a toast in a mobile shell).
type Notice struct {
	Kind       NoticeKind
	Capability Capability
	Message    string
}
