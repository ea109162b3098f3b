// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/templates/user-svc/internal/core"
	"github.com/carterperez-dev/templates/user-svc/internal/middleware"
	"github.com/carterperez-dev/templates/user-svc/internal/policy"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrUserInactive       = errors.New("user not found or inactive")
)

const expiredRetention = 24 * time.Hour

type UserInfo struct {
	ID              string
	Email           string
	Username        string
	FirstName       *string
	LastName        *string
	Avatar          *string
	PasswordHash    string
	Role            policy.Role
	IsActive        bool
	IsEmailVerified bool
	LastLoginAt     *time.Time
	CreatedAt       time.Time
}

type NewUser struct {
	Email        string
	Username     string
	PasswordHash string
	FirstName    *string
	LastName     *string
}

// UserProvider is the slice of user storage the auth flows need. Lookups
// exclude soft-deleted accounts and report absence as core.ErrNotFound.
type UserProvider interface {
	CheckAvailable(ctx context.Context, email, username string) error
	GetByEmail(ctx context.Context, email string) (*UserInfo, error)
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	Create(ctx context.Context, nu NewUser) (*UserInfo, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, userID string) error
}

type Service struct {
	repo     Repository
	jwt      *JWTManager
	users    UserProvider
	hasher   *core.PasswordHasher
	denylist Denylist
	logger   *slog.Logger
}

func NewService(
	repo Repository,
	jwt *JWTManager,
	users UserProvider,
	hasher *core.PasswordHasher,
	denylist Denylist,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		jwt:      jwt,
		users:    users,
		hasher:   hasher,
		denylist: denylist,
		logger:   logger,
	}
}

func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
	userAgent, ipAddress string,
) (resp *AuthResponse, err error) {
	ctx, span := core.StartSpan(ctx, "auth.Register")
	defer func() { core.EndSpan(span, err) }()

	if err := s.users.CheckAvailable(ctx, req.Email, req.Username); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, NewUser{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)

	return s.startSession(ctx, user, userAgent, ipAddress)
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
	userAgent, ipAddress string,
) (resp *AuthResponse, err error) {
	ctx, span := core.StartSpan(ctx, "auth.Login")
	defer func() { core.EndSpan(span, err) }()

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // timing attack prevention - always verify to prevent enumeration
			_, _, _ = s.hasher.VerifyTimingSafe(ctx, req.Password, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	valid, newHash, err := s.hasher.VerifyTimingSafe(
		ctx,
		req.Password,
		&user.PasswordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if !valid {
		return nil, ErrInvalidCredentials
	}

	if newHash != "" {
		if err := s.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
			s.logger.WarnContext(ctx, "password rehash failed",
				"user_id", user.ID,
				"error", err,
			)
		}
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	now := time.Now()
	user.LastLoginAt = &now

	return s.startSession(ctx, user, userAgent, ipAddress)
}

func (s *Service) Refresh(
	ctx context.Context,
	refreshToken, userAgent, ipAddress string,
) (resp *AuthResponse, err error) {
	ctx, span := core.StartSpan(ctx, "auth.Refresh")
	defer func() { core.EndSpan(span, err) }()

	payload, err := s.jwt.VerifyType(refreshToken, TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			s.revokeByToken(ctx, refreshToken)
			return nil, fmt.Errorf("refresh: %w: %w", core.ErrTokenExpired, core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
	}

	stored, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("find token: %w", err)
	}

	if stored.IsRevoked() {
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenRevoked)
	}

	if stored.IsExpired() {
		if err := s.repo.Revoke(ctx, stored.ID); err != nil &&
			!errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("revoke expired token: %w", err)
		}
		return nil, fmt.Errorf("refresh: %w: %w", core.ErrTokenExpired, core.ErrTokenInvalid)
	}

	if stored.UserID != payload.UserID {
		return nil, fmt.Errorf("refresh: subject mismatch: %w", core.ErrTokenInvalid)
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrUserInactive
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	pair, err := s.jwt.IssuePair(claimsFor(user))
	if err != nil {
		return nil, err
	}

	next := newRefreshRow(user.ID, pair, userAgent, ipAddress)
	if err := s.repo.Rotate(ctx, stored.ID, next); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	core.AddSpanEvent(ctx, "refresh_token.rotated",
		attribute.String("user_id", user.ID),
	)

	return s.buildAuthResponse(user, pair), nil
}

// Logout revokes the refresh row behind refreshToken. Unknown or already
// revoked tokens are not an error; someone else's token is.
func (s *Service) Logout(
	ctx context.Context,
	refreshToken, userID string,
) error {
	stored, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find token: %w", err)
	}

	if stored.UserID != userID {
		return fmt.Errorf("logout: %w", core.ErrForbidden)
	}

	if err := s.repo.Revoke(ctx, stored.ID); err != nil &&
		!errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("revoke token: %w", err)
	}

	return nil
}

func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	revoked, err := s.repo.RevokeAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke all tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "sessions revoked",
		"user_id", userID,
		"count", revoked,
	)

	return nil
}

// RevokeAccessToken denylists an access token id until it would have
// expired anyway.
func (s *Service) RevokeAccessToken(
	ctx context.Context,
	jti string,
	expiresAt time.Time,
) error {
	if err := s.denylist.Revoke(ctx, jti, expiresAt); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *Service) ChangePassword(
	ctx context.Context,
	userID, currentPassword, newPassword string,
) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	valid, err := s.hasher.Verify(ctx, currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}

	if !valid {
		return ErrInvalidCredentials
	}

	newHash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.LogoutAll(ctx, userID); err != nil {
		return fmt.Errorf("logout all: %w", err)
	}

	return nil
}

// ValidateAccessToken never returns an error: any failure means the
// caller is treated as unauthenticated.
func (s *Service) ValidateAccessToken(
	ctx context.Context,
	token string,
) *middleware.AccessTokenClaims {
	payload, err := s.jwt.VerifyType(token, TokenTypeAccess)
	if err != nil {
		if p := s.jwt.DecodeUnsafe(token); p != nil {
			s.logger.DebugContext(ctx, "access token rejected",
				"subject", p.UserID,
				"error", err,
			)
		}
		return nil
	}

	revoked, err := s.denylist.IsRevoked(ctx, payload.TokenID)
	if err != nil {
		s.logger.WarnContext(ctx, "denylist unavailable",
			"error", err,
		)
	}
	if revoked {
		return nil
	}

	user, err := s.users.GetByID(ctx, payload.UserID)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			s.logger.ErrorContext(ctx, "load user for token",
				"user_id", payload.UserID,
				"error", err,
			)
		}
		return nil
	}

	if !user.IsActive {
		return nil
	}

	return &middleware.AccessTokenClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TokenID:   payload.TokenID,
		ExpiresAt: payload.ExpiresAt,
	}
}

func (s *Service) GetCurrentUser(
	ctx context.Context,
	userID string,
) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := toUserResponse(user)
	return &resp, nil
}

func (s *Service) GetActiveSessions(
	ctx context.Context,
	userID string,
) ([]SessionInfo, error) {
	tokens, err := s.repo.GetActiveSessionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, SessionInfo{
			ID:        t.ID,
			UserAgent: t.UserAgent,
			IPAddress: t.IPAddress,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}

	return sessions, nil
}

func (s *Service) RevokeSession(
	ctx context.Context,
	userID, sessionID string,
) error {
	token, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}

	if token.UserID != userID {
		return fmt.Errorf("revoke session: %w", core.ErrForbidden)
	}

	if err := s.repo.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	return nil
}

// PurgeExpired deletes refresh rows that expired more than a day ago.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, time.Now().Add(-expiredRetention))
}

func (s *Service) startSession(
	ctx context.Context,
	user *UserInfo,
	userAgent, ipAddress string,
) (*AuthResponse, error) {
	pair, err := s.jwt.IssuePair(claimsFor(user))
	if err != nil {
		return nil, err
	}

	row := newRefreshRow(user.ID, pair, userAgent, ipAddress)
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return s.buildAuthResponse(user, pair), nil
}

func (s *Service) revokeByToken(ctx context.Context, refreshToken string) {
	stored, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		return
	}

	if err := s.repo.Revoke(ctx, stored.ID); err != nil &&
		!errors.Is(err, core.ErrNotFound) {
		s.logger.WarnContext(ctx, "revoke expired refresh token",
			"token_id", stored.ID,
			"error", err,
		)
	}
}

func claimsFor(user *UserInfo) Claims {
	return Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}
}

func newRefreshRow(
	userID string,
	pair *TokenPair,
	userAgent, ipAddress string,
) *RefreshToken {
	return &RefreshToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: core.HashToken(pair.RefreshToken),
		ExpiresAt: pair.RefreshExpiresAt,
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}
}

func (s *Service) buildAuthResponse(user *UserInfo, pair *TokenPair) *AuthResponse {
	return &AuthResponse{
		User: toUserResponse(user),
		Tokens: TokenResponse{
			AccessToken:           pair.AccessToken,
			RefreshToken:          pair.RefreshToken,
			TokenType:             "Bearer",
			ExpiresIn:             int(s.jwt.AccessTTL().Seconds()),
			ExpiresAt:             pair.AccessExpiresAt,
			RefreshExpiresIn:      int(s.jwt.RefreshTTL().Seconds()),
			RefreshTokenExpiresAt: pair.RefreshExpiresAt,
		},
	}
}
