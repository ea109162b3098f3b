// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/carterperez-dev/templates/user-svc/internal/auth"
	"github.com/carterperez-dev/templates/user-svc/internal/core"
	"github.com/carterperez-dev/templates/user-svc/internal/policy"
)

var (
	ErrEmailExists    = core.DuplicateError("email")
	ErrUsernameExists = core.DuplicateError("username")
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CheckAvailable reports the first taken identifier, email before
// username. Matching is exact.
func (s *Service) CheckAvailable(
	ctx context.Context,
	email, username string,
) error {
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return ErrEmailExists
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return ErrUsernameExists
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	return nil
}

func (s *Service) GetByID(
	ctx context.Context,
	id string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) GetByEmail(
	ctx context.Context,
	email string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

// Create inserts without a lookup. A taken email or username surfaces
// from the unique indexes as ErrEmailExists or ErrUsernameExists.
func (s *Service) Create(
	ctx context.Context,
	nu auth.NewUser,
) (*auth.UserInfo, error) {
	user := &User{
		ID:           uuid.New().String(),
		Email:        nu.Email,
		Username:     nu.Username,
		PasswordHash: nu.PasswordHash,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		Role:         policy.RoleUser,
		IsActive:     true,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) UpdatePassword(
	ctx context.Context,
	userID, passwordHash string,
) error {
	return s.repo.UpdatePassword(ctx, userID, passwordHash)
}

func (s *Service) UpdateLastLogin(ctx context.Context, userID string) error {
	return s.repo.UpdateLastLogin(ctx, userID)
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateUser(
	ctx context.Context,
	id string,
	req UpdateUserRequest,
) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.applyUpdate(ctx, user, req)
}

func (s *Service) applyUpdate(
	ctx context.Context,
	user *User,
	req UpdateUserRequest,
) (*User, error) {
	if req.Username != nil && *req.Username != user.Username {
		existing, err := s.repo.GetByUsername(ctx, *req.Username)
		switch {
		case err == nil && existing.ID != user.ID:
			return nil, ErrUsernameExists
		case err != nil && !errors.Is(err, core.ErrNotFound):
			return nil, err
		}
		user.Username = *req.Username
	}

	if req.FirstName != nil {
		user.FirstName = req.FirstName
	}
	if req.LastName != nil {
		user.LastName = req.LastName
	}
	if req.Avatar != nil {
		user.Avatar = req.Avatar
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *Service) SetStatus(
	ctx context.Context,
	id string,
	active bool,
) (*User, error) {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) VerifyEmail(ctx context.Context, id string) (*User, error) {
	if err := s.repo.SetEmailVerified(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.repo.SoftDelete(ctx, id)
}

func (s *Service) ListUsers(
	ctx context.Context,
	params ListUsersParams,
) (*UserListResult, error) {
	params.Normalize()

	users, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, err
	}

	return &UserListResult{
		Users:      users,
		Total:      total,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: core.TotalPages(total, params.Limit),
	}, nil
}

func (s *Service) CountByRole(ctx context.Context) (map[policy.Role]int, error) {
	return s.repo.CountByRole(ctx)
}

// authorize loads the target and checks the actor may operate on it.
// Absence is reported before permission, so a 403 implies the account
// exists.
func (s *Service) authorize(
	ctx context.Context,
	actor policy.Role,
	id string,
) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !policy.CanOperate(actor, user.Role) {
		return nil, fmt.Errorf(
			"%s cannot operate on %s: %w",
			actor,
			user.Role,
			core.ErrForbidden,
		)
	}

	return user, nil
}

func (s *Service) GetUserAs(
	ctx context.Context,
	actor policy.Role,
	id string,
) (*User, error) {
	return s.authorize(ctx, actor, id)
}

func (s *Service) UpdateUserAs(
	ctx context.Context,
	actor policy.Role,
	id string,
	req UpdateUserRequest,
) (*User, error) {
	user, err := s.authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	return s.applyUpdate(ctx, user, req)
}

func (s *Service) DeleteUserAs(
	ctx context.Context,
	actor policy.Role,
	id string,
) error {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return err
	}

	return s.repo.SoftDelete(ctx, id)
}

func (s *Service) SetStatusAs(
	ctx context.Context,
	actor policy.Role,
	id string,
	active bool,
) (*User, error) {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}

	return s.SetStatus(ctx, id, active)
}

func (s *Service) VerifyEmailAs(
	ctx context.Context,
	actor policy.Role,
	id string,
) (*User, error) {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}

	return s.VerifyEmail(ctx, id)
}

// ListUsersAs narrows an admin's listing to plain users whatever role
// filter was asked for.
func (s *Service) ListUsersAs(
	ctx context.Context,
	actor policy.Role,
	params ListUsersParams,
) (*UserListResult, error) {
	switch actor {
	case policy.RoleSuperAdmin:
	case policy.RoleAdmin:
		params.Role = policy.RoleUser
	default:
		return nil, fmt.Errorf("list users: %w", core.ErrForbidden)
	}

	return s.ListUsers(ctx, params)
}

func (s *Service) GetMe(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("get me: %w", core.ErrUnauthorized)
	}

	return s.repo.GetByID(ctx, userID)
}

func (s *Service) UpdateMe(
	ctx context.Context,
	userID string,
	req UpdateUserRequest,
) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("update me: %w", core.ErrUnauthorized)
	}

	return s.UpdateUser(ctx, userID, req)
}

func toUserInfo(u *User) *auth.UserInfo {
	return &auth.UserInfo{
		ID:              u.ID,
		Email:           u.Email,
		Username:        u.Username,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Avatar:          u.Avatar,
		PasswordHash:    u.PasswordHash,
		Role:            u.Role,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
	}
}

var _ auth.UserProvider = (*Service)(nil)
