package settlement

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
)

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// System is the actor used by background jobs.
var System = Actor{Role: enums.UserRoleAdmin}

// IsOperator reports whether the actor may act on any order.
func (a Actor) IsOperator() bool {
	return a.Role == enums.UserRoleAdmin
}

func (a Actor) validate() error {
	if a.UserID == uuid.Nil && !a.IsOperator() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required")
	}
	return nil
}

func (a Actor) requireOperator() error {
	if err := a.validate(); err != nil {
		return err
	}
	if !a.IsOperator() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "operator role required")
	}
	return nil
}

func (a Actor) canAccess(order *models.Order) error {
	if a.IsOperator() || order.UserID == a.UserID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
}

func (a Actor) ref() *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}
