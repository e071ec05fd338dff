package port

import "github.com/Wyydra/callbridge/internal/core/domain"

// NoticeGateway pushes transient user notices to whatever UI is attached.
type NoticeGateway interface {
	BroadcastNotice(n domain.Notice)
}
