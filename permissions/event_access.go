package permissions

import (
	"fmt"

	"github.com/camden-git/eventfaces/models"
)

// Caller is the authenticated principal on whose behalf an operation runs.
// System callers (CLI, background jobs) bypass event membership checks.
type Caller struct {
	UserID uint
	System bool
}

func UserCaller(id uint) Caller {
	return Caller{UserID: id}
}

func SystemCaller() Caller {
	return Caller{System: true}
}

// RegistrationChecker is satisfied by the event repository
type RegistrationChecker interface {
	IsRegistered(userID, eventID uint) (bool, error)
}

// EventAccess decides what a caller may do within an event. The owner holds
// RoleOwner; a registered user holds RoleGuest; anyone else holds nothing.
type EventAccess struct {
	Registrations RegistrationChecker
}

func NewEventAccess(registrations RegistrationChecker) *EventAccess {
	return &EventAccess{Registrations: registrations}
}

// RoleOf returns the caller's role in the event, "" when unrelated
func (a *EventAccess) RoleOf(caller Caller, event *models.Event) (string, error) {
	if caller.System || event.OwnerID == caller.UserID {
		return RoleOwner, nil
	}
	registered, err := a.Registrations.IsRegistered(caller.UserID, event.ID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve role in event %d: %w", event.ID, err)
	}
	if registered {
		return RoleGuest, nil
	}
	return "", nil
}

// Can reports whether caller holds permission key within the event. An
// undefined key is an error rather than a silent denial.
func (a *EventAccess) Can(caller Caller, event *models.Event, key string) (bool, error) {
	if !IsValidPermissionKey(key) {
		return false, fmt.Errorf("unknown permission %q", key)
	}
	role, err := a.RoleOf(caller, event)
	if err != nil {
		return false, err
	}
	return RoleHas(role, key), nil
}
