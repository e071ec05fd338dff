package http

import (
	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/Wyydra/callbridge/internal/core/service"
)

type errorDTO struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
}

func newErrorDTO(err error) errorDTO {
	return errorDTO{
		Code:    domain.CodeOf(err),
		Message: err.Error(),
		Field:   domain.FieldOf(err),
	}
}

type userDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type sessionDTO struct {
	Handle     string  `json:"handle"`
	State      string  `json:"state"`
	CallID     string  `json:"callId,omitempty"`
	User       userDTO `json:"user"`
	Generation uint64  `json:"generation"`
}

type togglesDTO struct {
	Camera      bool `json:"camera"`
	Microphone  bool `json:"microphone"`
	ScreenShare bool `json:"screenShare"`
}

type snapshotDTO struct {
	Session     *sessionDTO       `json:"session"`
	Permissions map[string]string `json:"permissions"`
	Toggles     togglesDTO        `json:"toggles"`
	Generation  uint64            `json:"generation"`
}

// newSnapshotDTO leaves the credentials out.
func newSnapshotDTO(s domain.Snapshot) snapshotDTO {
	dto := snapshotDTO{
		Permissions: make(map[string]string, len(s.Permissions)),
		Toggles: togglesDTO{
			Camera:      s.Toggles.Camera,
			Microphone:  s.Toggles.Microphone,
			ScreenShare: s.Toggles.ScreenShare,
		},
		Generation: s.Generation,
	}
	for c, st := range s.Permissions {
		dto.Permissions[string(c)] = st.String()
	}
	if s.Session != nil {
		dto.Session = &sessionDTO{
			Handle:     s.Session.Handle.String(),
			State:      s.Session.State.String(),
			CallID:     s.Session.CallID,
			User:       userDTO(s.Session.User),
			Generation: s.Session.Generation,
		}
	}
	return dto
}

type changeDTO struct {
	Capability string `json:"capability"`
	From       string `json:"from"`
	To         string `json:"to"`
}

type resumeDTO struct {
	Changes []changeDTO `json:"changes"`
}

func newChangeDTOs(changes []service.PermissionChange) []changeDTO {
	out := make([]changeDTO, 0, len(changes))
	for _, ch := range changes {
		out = append(out, changeDTO{
			Capability: string(ch.Capability),
			From:       ch.From.String(),
			To:         ch.To.String(),
		})
	}
	return out
}

type toggleDTO struct {
	Enabled    bool   `json:"enabled"`
	Redirect   string `json:"redirect"`
	Permission string `json:"permission"`
}

type eventDTO struct {
	CallID string `json:"callId"`
	UserID string `json:"userId,omitempty"`
}

type noticeDTO struct {
	Kind       string `json:"kind"`
	Capability string `json:"capability,omitempty"`
	Message    string `json:"message"`
}
