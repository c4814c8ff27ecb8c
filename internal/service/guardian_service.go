package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/models"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

type guardianRepository interface {
	FindByID(ctx context.Context, id string) (*models.Guardian, error)
	FindByUserID(ctx context.Context, userID string) (*models.Guardian, error)
	Create(ctx context.Context, guardian *models.Guardian) error
	Update(ctx context.Context, guardian *models.Guardian) error
	SoftDelete(ctx context.Context, id string) error
}

// GuardianProfileRequest is the guardian's own profile.
type GuardianProfileRequest struct {
	FirstName    string `json:"first_name" validate:"required,max=100"`
	LastName     string `json:"last_name" validate:"required,max=100"`
	Relationship string `json:"relationship" validate:"required,oneof=mother father guardian grandparent sibling other"`
	Phone        string `json:"phone" validate:"required,max=30"`
	Email        string `json:"email" validate:"omitempty,email"`
	Address      string `json:"address" validate:"max=500"`
	Occupation   string `json:"occupation" validate:"max=100"`
}

// GuardianService manages guardian profiles bound to user accounts.
type GuardianService struct {
	repo      guardianRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGuardianService constructs the service.
func NewGuardianService(repo guardianRepository, validate *validator.Validate, logger *zap.Logger) *GuardianService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardianService{repo: repo, validator: validate, logger: logger}
}

// Profile returns the guardian profile of the signed in user.
func (s *GuardianService) Profile(ctx context.Context, actor Actor) (*models.Guardian, error) {
	guardian, err := s.repo.FindByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, notFound(err, "guardian profile")
	}
	return guardian, nil
}

// SaveProfile creates or updates the signed in guardian's profile.
func (s *GuardianService) SaveProfile(ctx context.Context, actor Actor, req GuardianProfileRequest) (*models.Guardian, error) {
	if actor.Role != models.RoleGuardian {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only guardian accounts have a guardian profile")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err)
	}
	guardian, err := s.repo.FindByUserID(ctx, actor.UserID)
	creating := false
	switch {
	case isNoRows(err):
		guardian = &models.Guardian{UserID: actor.UserID}
		creating = true
	case err != nil:
		return nil, notFound(err, "guardian profile")
	}

	guardian.FirstName = req.FirstName
	guardian.LastName = req.LastName
	guardian.Relationship = req.Relationship
	guardian.Phone = req.Phone
	guardian.Email = req.Email
	guardian.Address = req.Address
	guardian.Occupation = req.Occupation

	if creating {
		err = s.repo.Create(ctx, guardian)
	} else {
		err = s.repo.Update(ctx, guardian)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save guardian profile")
	}
	return guardian, nil
}

// Get returns a guardian by id.
func (s *GuardianService) Get(ctx context.Context, id string) (*models.Guardian, error) {
	guardian, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "guardian")
	}
	return guardian, nil
}

// Delete soft deletes a guardian. Only administrators may remove profiles.
func (s *GuardianService) Delete(ctx context.Context, actor Actor, id string) error {
	if !actor.Role.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators can remove guardians")
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return notFound(err, "guardian")
	}
	s.logger.Info("guardian removed", zap.String("guardian_id", id), zap.String("by", actor.UserID))
	return nil
}
