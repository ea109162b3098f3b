// AngelaMos | 2026
// fakes_test.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/carterperez-dev/templates/user-svc/internal/config"
	"github.com/carterperez-dev/templates/user-svc/internal/core"
	"github.com/carterperez-dev/templates/user-svc/internal/policy"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[string]*RefreshToken
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]*RefreshToken)}
}

func (r *memRepo) Create(_ context.Context, token *RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(token)
	return nil
}

func (r *memRepo) insert(token *RefreshToken) {
	token.CreatedAt = time.Now()
	cp := *token
	r.rows[token.ID] = &cp
}

func (r *memRepo) FindByHash(_ context.Context, hash string) (*RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TokenHash == hash {
			cp := *row
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
}

func (r *memRepo) FindByID(_ context.Context, id string) (*RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	cp := *row
	return &cp, nil
}

func markRevoked(row *RefreshToken) {
	now := time.Now()
	row.RevokedAt = &now
}

func (r *memRepo) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.IsRevoked() {
		return fmt.Errorf("revoke refresh token: %w", core.ErrNotFound)
	}
	markRevoked(row)
	return nil
}

func (r *memRepo) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.UserID == userID && !row.IsRevoked() {
			markRevoked(row)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) Rotate(_ context.Context, oldID string, next *RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[oldID]
	if !ok || !row.IsActive() {
		return fmt.Errorf("rotate refresh token: %w", core.ErrTokenRevoked)
	}
	markRevoked(row)
	r.insert(next)
	return nil
}

func (r *memRepo) GetActiveSessionsForUser(
	_ context.Context,
	userID string,
) ([]RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RefreshToken
	for _, row := range r.rows {
		if row.UserID == userID && row.IsActive() {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, row := range r.rows {
		if row.ExpiresAt.Before(before) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) byHash(t *testing.T, token string) *RefreshToken {
	t.Helper()
	row, err := r.FindByHash(context.Background(), core.HashToken(token))
	require.NoError(t, err)
	return row
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]*UserInfo
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*UserInfo)}
}

func (m *memUsers) CheckAvailable(_ context.Context, email, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return core.DuplicateError("email")
		}
	}
	for _, u := range m.users {
		if u.Username == username {
			return core.DuplicateError("username")
		}
	}
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
}

func (m *memUsers) GetByID(_ context.Context, id string) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) Create(ctx context.Context, nu NewUser) (*UserInfo, error) {
	if err := m.CheckAvailable(ctx, nu.Email, nu.Username); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &UserInfo{
		ID:           uuid.New().String(),
		Email:        nu.Email,
		Username:     nu.Username,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		PasswordHash: nu.PasswordHash,
		Role:         policy.RoleUser,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) UpdateLastLogin(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	now := time.Now()
	u.LastLoginAt = &now
	return nil
}

func (m *memUsers) setActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].IsActive = active
}

type memDenylist struct {
	mu   sync.Mutex
	ids  map[string]time.Time
	fail bool
}

func newMemDenylist() *memDenylist {
	return &memDenylist{ids: make(map[string]time.Time)}
}

func (d *memDenylist) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids[jti] = expiresAt
	return nil
}

func (d *memDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return false, errors.New("redis: connection refused")
	}
	_, ok := d.ids[jti]
	return ok, nil
}

type testEnv struct {
	svc      *Service
	repo     *memRepo
	users    *memUsers
	denylist *memDenylist
	jwt      *JWTManager
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:             "test-secret-that-is-long-enough-for-hs256",
		AccessTokenExpire:  time.Hour,
		RefreshTokenExpire: 7 * 24 * time.Hour,
		Issuer:             "user-svc",
		Audience:           "user-svc-api",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	jwtManager, err := NewJWTManager(testJWTConfig())
	require.NoError(t, err)

	hasher, err := core.NewPasswordHasher(bcrypt.MinCost, 4)
	require.NoError(t, err)

	env := &testEnv{
		repo:     newMemRepo(),
		users:    newMemUsers(),
		denylist: newMemDenylist(),
		jwt:      jwtManager,
	}
	env.svc = NewService(
		env.repo,
		jwtManager,
		env.users,
		hasher,
		env.denylist,
		discardLogger(),
	)

	return env
}

func (e *testEnv) register(t *testing.T, email, username, password string) *AuthResponse {
	t.Helper()
	resp, err := e.svc.Register(context.Background(), RegisterRequest{
		Email:    email,
		Username: username,
		Password: password,
	}, "go-test", "127.0.0.1")
	require.NoError(t, err)
	return resp
}
