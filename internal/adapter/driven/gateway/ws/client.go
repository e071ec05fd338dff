package ws

import "github.com/Wyydra/callbridge/internal/core/domain"

type Client interface {
	ID() string
	SendNotice(n domain.Notice) error
	Close() error
}
