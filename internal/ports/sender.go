package ports

import (
	"context"

	"github.com/bnema/formflow/internal/domain"
)

type Sender interface {
	Deliver(ctx context.Context, delivery domain.Delivery) error
	Notify(ctx context.Context, id domain.SessionID, notice domain.Notice) error
}

type Presence interface {
	IsReachable(id domain.SessionID) bool
}
