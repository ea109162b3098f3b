// AngelaMos | 2026
// jwt.go

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/templates/user-svc/internal/config"
	"github.com/carterperez-dev/templates/user-svc/internal/core"
	"github.com/carterperez-dev/templates/user-svc/internal/policy"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

const (
	claimUserID = "userId"
	claimEmail  = "email"
	claimRole   = "role"
	claimType   = "type"
)

// Claims is the identity embedded in every token.
type Claims struct {
	UserID string
	Email  string
	Role   policy.Role
}

// TokenPayload is what a verified (or merely decoded) token carries.
type TokenPayload struct {
	UserID    string
	Email     string
	Role      policy.Role
	Type      TokenType
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is one access token plus the refresh token issued with it.
type TokenPair struct {
	AccessToken      string
	AccessTokenID    string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshTokenID   string
	RefreshExpiresAt time.Time
}

type JWTManager struct {
	key    jwk.Key
	config config.JWTConfig
	now    func() time.Time
}

func NewJWTManager(cfg config.JWTConfig) (*JWTManager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	key, err := jwk.Import([]byte(cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("import signing key: %w", err)
	}

	if setErr := key.Set(jwk.AlgorithmKey, jwa.HS256()); setErr != nil {
		return nil, fmt.Errorf("set algorithm: %w", setErr)
	}

	return &JWTManager{
		key:    key,
		config: cfg,
		now:    time.Now,
	}, nil
}

func (m *JWTManager) AccessTTL() time.Duration {
	return m.config.AccessTokenExpire
}

func (m *JWTManager) RefreshTTL() time.Duration {
	return m.config.RefreshTokenExpire
}

func (m *JWTManager) IssueAccessToken(claims Claims) (string, error) {
	signed, _, err := m.sign(claims, TokenTypeAccess, m.config.AccessTokenExpire)
	return signed, err
}

func (m *JWTManager) IssueRefreshToken(claims Claims) (string, error) {
	signed, _, err := m.sign(claims, TokenTypeRefresh, m.config.RefreshTokenExpire)
	return signed, err
}

func (m *JWTManager) IssuePair(claims Claims) (*TokenPair, error) {
	access, accessPayload, err := m.sign(
		claims,
		TokenTypeAccess,
		m.config.AccessTokenExpire,
	)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, refreshPayload, err := m.sign(
		claims,
		TokenTypeRefresh,
		m.config.RefreshTokenExpire,
	)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		AccessTokenID:    accessPayload.TokenID,
		AccessExpiresAt:  accessPayload.ExpiresAt,
		RefreshToken:     refresh,
		RefreshTokenID:   refreshPayload.TokenID,
		RefreshExpiresAt: refreshPayload.ExpiresAt,
	}, nil
}

func (m *JWTManager) sign(
	claims Claims,
	tokenType TokenType,
	ttl time.Duration,
) (string, TokenPayload, error) {
	now := m.now().Truncate(time.Second)
	payload := TokenPayload{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		Type:      tokenType,
		TokenID:   uuid.New().String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	token, err := jwt.NewBuilder().
		JwtID(payload.TokenID).
		Issuer(m.config.Issuer).
		Audience([]string{m.config.Audience}).
		Subject(claims.UserID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(payload.ExpiresAt).
		Claim(claimUserID, claims.UserID).
		Claim(claimEmail, claims.Email).
		Claim(claimRole, string(claims.Role)).
		Claim(claimType, string(tokenType)).
		Build()
	if err != nil {
		return "", TokenPayload{}, fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), m.key))
	if err != nil {
		return "", TokenPayload{}, fmt.Errorf("sign token: %w", err)
	}

	return string(signed), payload, nil
}

// Verify checks signature, expiry, issuer and audience, then the identity
// claims. Every failure wraps core.ErrTokenInvalid; an expired but
// otherwise authentic token also wraps core.ErrTokenExpired.
func (m *JWTManager) Verify(tokenString string) (*TokenPayload, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256(), m.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithClock(jwt.ClockFunc(m.now)),
	)
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf(
				"verify token: %w: %w",
				core.ErrTokenInvalid,
				core.ErrTokenExpired,
			)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	payload, err := payloadFromToken(token)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	if !payload.Role.Valid() {
		return nil, fmt.Errorf(
			"verify token: unknown role %q: %w",
			payload.Role,
			core.ErrTokenInvalid,
		)
	}

	return payload, nil
}

// VerifyType is Verify plus a check that the token was minted for want.
func (m *JWTManager) VerifyType(
	tokenString string,
	want TokenType,
) (*TokenPayload, error) {
	payload, err := m.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	if payload.Type != want {
		return nil, fmt.Errorf(
			"verify token: expected %s token, got %q: %w",
			want,
			payload.Type,
			core.ErrTokenInvalid,
		)
	}

	return payload, nil
}

// DecodeUnsafe reads the payload without checking the signature. Only for
// inspection such as logging; never base a decision on it.
func (m *JWTManager) DecodeUnsafe(tokenString string) *TokenPayload {
	token, err := jwt.ParseInsecure([]byte(tokenString))
	if err != nil {
		return nil
	}

	payload, err := payloadFromToken(token)
	if err != nil {
		return nil
	}

	return payload
}

func payloadFromToken(token jwt.Token) (*TokenPayload, error) {
	var userID string
	if err := token.Get(claimUserID, &userID); err != nil || userID == "" {
		return nil, fmt.Errorf("missing userId claim: %w", core.ErrTokenInvalid)
	}

	var email string
	if err := token.Get(claimEmail, &email); err != nil || email == "" {
		return nil, fmt.Errorf("missing email claim: %w", core.ErrTokenInvalid)
	}

	var role string
	if err := token.Get(claimRole, &role); err != nil || role == "" {
		return nil, fmt.Errorf("missing role claim: %w", core.ErrTokenInvalid)
	}

	var tokenType string
	if err := token.Get(claimType, &tokenType); err != nil {
		return nil, fmt.Errorf("missing type claim: %w", core.ErrTokenInvalid)
	}

	payload := &TokenPayload{
		UserID: userID,
		Email:  email,
		Role:   policy.Role(role),
		Type:   TokenType(tokenType),
	}

	if jti, ok := token.JwtID(); ok {
		payload.TokenID = jti
	}
	if iat, ok := token.IssuedAt(); ok {
		payload.IssuedAt = iat
	}
	if exp, ok := token.Expiration(); ok {
		payload.ExpiresAt = exp
	}

	return payload, nil
}

func isTokenExpiredError(err error) bool {
	return errors.Is(err, jwt.TokenExpiredError())
}
