package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/cbhlc-api/internal/models"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

// Actor identifies who performs an operation.
type Actor struct {
	UserID    string
	Role      models.UserRole
	IP        string
	UserAgent string
}

// SystemActor is used for scheduled work.
var SystemActor = Actor{Role: models.RoleSuperAdmin, UserAgent: "cbhlc-sweep"}

func (a Actor) userIDPtr() *string {
	if a.UserID == "" {
		return nil
	}
	id := a.UserID
	return &id
}

type guardianFinder interface {
	FindByID(ctx context.Context, id string) (*models.Guardian, error)
	FindByUserID(ctx context.Context, userID string) (*models.Guardian, error)
}

// guardianScope returns the guardian id an actor is limited to. Staff get an
// empty scope; other roles must own a guardian profile.
func guardianScope(ctx context.Context, guardians guardianFinder, actor Actor) (string, error) {
	if actor.Role.IsStaff() {
		return "", nil
	}
	if actor.Role != models.RoleGuardian {
		return "", appErrors.Clone(appErrors.ErrForbidden, "only guardians and staff can access enrollment records")
	}
	guardian, err := guardians.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrForbidden, "guardian profile required")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardian profile")
	}
	return guardian.ID, nil
}

// guardianUserID resolves the account behind a guardian for notifications.
func guardianUserID(ctx context.Context, guardians guardianFinder, guardianID string) (string, error) {
	guardian, err := guardians.FindByID(ctx, guardianID)
	if err != nil {
		return "", err
	}
	return guardian.UserID, nil
}

func conflictField(field, message string) *appErrors.Error {
	err := appErrors.Clone(appErrors.ErrConflict, message)
	err.Fields = []appErrors.FieldError{{Field: field, Message: message}}
	return err
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+what)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
