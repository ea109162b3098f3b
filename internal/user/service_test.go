// AngelaMos | 2026
// service_test.go

package user

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/user-svc/internal/auth"
	"github.com/carterperez-dev/templates/user-svc/internal/core"
	"github.com/carterperez-dev/templates/user-svc/internal/policy"
)

type memRepo struct {
	mu    sync.Mutex
	users map[string]*User
	clock time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		users: make(map[string]*User),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memRepo) live(id string) (*User, bool) {
	u, ok := m.users[id]
	if !ok || u.IsDeleted() {
		return nil, false
	}
	return u, true
}

func (m *memRepo) Create(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.IsDeleted() {
			continue
		}
		if u.Email == user.Email {
			return fmt.Errorf("create user: %w", ErrEmailExists)
		}
		if u.Username == user.Username {
			return fmt.Errorf("create user: %w", ErrUsernameExists)
		}
	}
	m.clock = m.clock.Add(time.Second)
	user.CreatedAt = m.clock
	user.UpdatedAt = m.clock
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.live(id)
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) find(match func(*User) bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if !u.IsDeleted() && match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	return m.find(func(u *User) bool { return u.Email == email })
}

func (m *memRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	return m.find(func(u *User) bool { return u.Username == username })
}

func (m *memRepo) mutate(id string, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.live(id)
	if !ok {
		return fmt.Errorf("update user: %w", core.ErrNotFound)
	}
	fn(u)
	return nil
}

func (m *memRepo) Update(_ context.Context, user *User) error {
	return m.mutate(user.ID, func(u *User) {
		u.Username = user.Username
		u.FirstName = user.FirstName
		u.LastName = user.LastName
		u.Avatar = user.Avatar
	})
}

func (m *memRepo) SetActive(_ context.Context, id string, active bool) error {
	return m.mutate(id, func(u *User) { u.IsActive = active })
}

func (m *memRepo) SetEmailVerified(_ context.Context, id string) error {
	return m.mutate(id, func(u *User) { u.IsEmailVerified = true })
}

func (m *memRepo) UpdatePassword(_ context.Context, id, hash string) error {
	return m.mutate(id, func(u *User) { u.PasswordHash = hash })
}

func (m *memRepo) UpdateLastLogin(_ context.Context, id string) error {
	return m.mutate(id, func(u *User) {
		now := time.Now()
		u.LastLoginAt = &now
	})
}

func (m *memRepo) SoftDelete(_ context.Context, id string) error {
	return m.mutate(id, func(u *User) {
		now := time.Now()
		u.DeletedAt = &now
	})
}

func (m *memRepo) List(_ context.Context, params ListUsersParams) ([]User, int, error) {
	params.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []User
	for _, u := range m.users {
		if u.IsDeleted() {
			continue
		}
		if params.Role != "" && u.Role != params.Role {
			continue
		}
		if params.IsActive != nil && u.IsActive != *params.IsActive {
			continue
		}
		if params.Search != "" && !matchesSearch(u, params.Search) {
			continue
		}
		matched = append(matched, *u)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(params.Offset(), total)
	end := min(start+params.Limit, total)
	return matched[start:end], total, nil
}

func matchesSearch(u *User, term string) bool {
	fields := []string{u.Email, u.Username}
	if u.FirstName != nil {
		fields = append(fields, *u.FirstName)
	}
	if u.LastName != nil {
		fields = append(fields, *u.LastName)
	}
	for _, f := range fields {
		if strings.Contains(f, term) {
			return true
		}
	}
	return false
}

func (m *memRepo) CountByRole(context.Context) (map[policy.Role]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[policy.Role]int)
	for _, u := range m.users {
		if !u.IsDeleted() {
			counts[u.Role]++
		}
	}
	return counts, nil
}

func (m *memRepo) seed(t *testing.T, username string, role policy.Role) *User {
	t.Helper()
	u := &User{
		ID:           uuid.New().String(),
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: "hash",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, m.Create(context.Background(), u))
	return u
}

func strPtr(s string) *string { return &s }

func TestCreate_Uniqueness(t *testing.T) {
	t.Parallel()
	svc := NewService(newMemRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, auth.NewUser{
		Email:        "a@x.com",
		Username:     "alice",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.Equal(t, policy.RoleUser, created.Role)
	assert.True(t, created.IsActive)

	_, err = svc.Create(ctx, auth.NewUser{Email: "a@x.com", Username: "bob"})
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = svc.Create(ctx, auth.NewUser{Email: "b@x.com", Username: "alice"})
	assert.ErrorIs(t, err, ErrUsernameExists)

	_, err = svc.Create(ctx, auth.NewUser{Email: "a@x.com", Username: "alice"})
	assert.ErrorIs(t, err, ErrEmailExists, "email is checked first")
}

type lookupCounter struct {
	*memRepo
	lookups int
}

func (c *lookupCounter) GetByEmail(ctx context.Context, email string) (*User, error) {
	c.lookups++
	return c.memRepo.GetByEmail(ctx, email)
}

func (c *lookupCounter) GetByUsername(ctx context.Context, username string) (*User, error) {
	c.lookups++
	return c.memRepo.GetByUsername(ctx, username)
}

func TestCreate_LeavesUniquenessToInsert(t *testing.T) {
	t.Parallel()
	repo := &lookupCounter{memRepo: newMemRepo()}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, auth.NewUser{Email: "a@x.com", Username: "alice"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, auth.NewUser{Email: "a@x.com", Username: "bob"})
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.Zero(t, repo.lookups)

	require.NoError(t, svc.CheckAvailable(ctx, "c@x.com", "carol"))
	assert.Equal(t, 2, repo.lookups)
}

func TestSoftDeleteHidesUser(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	u := repo.seed(t, "alice", policy.RoleUser)
	repo.seed(t, "bob", policy.RoleUser)

	require.NoError(t, svc.DeleteUser(ctx, u.ID))

	_, err := svc.GetByID(ctx, u.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = svc.GetByEmail(ctx, u.Email)
	assert.ErrorIs(t, err, core.ErrNotFound)

	result, err := svc.ListUsers(ctx, ListUsersParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, "bob", result.Users[0].Username)

	assert.ErrorIs(t, svc.DeleteUser(ctx, u.ID), core.ErrNotFound)
}

func TestListUsers_Pagination(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := NewService(repo)

	for i := range 25 {
		repo.seed(t, fmt.Sprintf("user%02d", i), policy.RoleUser)
	}

	result, err := svc.ListUsers(context.Background(), ListUsersParams{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, result.Users, 10)
	assert.Equal(t, 25, result.Total)
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, "user14", result.Users[0].Username, "newest first")

	result, err = svc.ListUsers(context.Background(), ListUsersParams{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, result.Users, 5)
}

func TestListUsersParams_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        ListUsersParams
		wantPage  int
		wantLimit int
	}{
		{"defaults", ListUsersParams{}, 1, 10},
		{"negative", ListUsersParams{Page: -3, Limit: -1}, 1, 10},
		{"clamped", ListUsersParams{Page: 4, Limit: 500}, 4, 100},
		{"kept", ListUsersParams{Page: 2, Limit: 25}, 2, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := tt.in
			p.Normalize()
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantLimit, p.Limit)
		})
	}
}

func TestListUsers_Filters(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	repo.seed(t, "alice", policy.RoleUser)
	bob := repo.seed(t, "bob", policy.RoleUser)
	repo.seed(t, "carol", policy.RoleAdmin)
	repo.seed(t, "root", policy.RoleSuperAdmin)
	_, err := svc.SetStatus(ctx, bob.ID, false)
	require.NoError(t, err)

	inactive := false
	result, err := svc.ListUsers(ctx, ListUsersParams{IsActive: &inactive})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "bob", result.Users[0].Username)

	result, err = svc.ListUsers(ctx, ListUsersParams{Search: "car"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "carol", result.Users[0].Username)

	result, err = svc.ListUsersAs(ctx, policy.RoleAdmin, ListUsersParams{Role: policy.RoleSuperAdmin})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total, "admin listing is forced to plain users")
	for _, u := range result.Users {
		assert.Equal(t, policy.RoleUser, u.Role)
	}

	result, err = svc.ListUsersAs(ctx, policy.RoleSuperAdmin, ListUsersParams{})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)

	_, err = svc.ListUsersAs(ctx, policy.RoleUser, ListUsersParams{})
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestPermissionGatedOperations(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	plain := repo.seed(t, "plain", policy.RoleUser)
	admin := repo.seed(t, "admin", policy.RoleAdmin)
	super := repo.seed(t, "super", policy.RoleSuperAdmin)
	missing := uuid.New().String()

	tests := []struct {
		name    string
		actor   policy.Role
		target  string
		wantErr error
	}{
		{"admin on user", policy.RoleAdmin, plain.ID, nil},
		{"admin on admin", policy.RoleAdmin, admin.ID, core.ErrForbidden},
		{"admin on super", policy.RoleAdmin, super.ID, core.ErrForbidden},
		{"super on admin", policy.RoleSuperAdmin, admin.ID, nil},
		{"super on super", policy.RoleSuperAdmin, super.ID, nil},
		{"user on user", policy.RoleUser, plain.ID, core.ErrForbidden},
		{"missing before forbidden", policy.RoleUser, missing, core.ErrNotFound},
		{"admin on missing", policy.RoleAdmin, missing, core.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, getErr := svc.GetUserAs(ctx, tt.actor, tt.target)
			_, verifyErr := svc.VerifyEmailAs(ctx, tt.actor, tt.target)
			_, updateErr := svc.UpdateUserAs(ctx, tt.actor, tt.target, UpdateUserRequest{})
			_, statusErr := svc.SetStatusAs(ctx, tt.actor, tt.target, true)

			for _, err := range []error{getErr, verifyErr, updateErr, statusErr} {
				if tt.wantErr == nil {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, tt.wantErr)
				}
			}
		})
	}
}

func TestDeleteUserAs(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	plain := repo.seed(t, "plain", policy.RoleUser)
	admin := repo.seed(t, "admin", policy.RoleAdmin)

	assert.ErrorIs(t, svc.DeleteUserAs(ctx, policy.RoleAdmin, admin.ID), core.ErrForbidden)
	_, err := svc.GetUser(ctx, admin.ID)
	require.NoError(t, err, "forbidden delete leaves the row alone")

	require.NoError(t, svc.DeleteUserAs(ctx, policy.RoleAdmin, plain.ID))
	assert.ErrorIs(t, svc.DeleteUserAs(ctx, policy.RoleAdmin, plain.ID), core.ErrNotFound)
}

func TestUpdateUser(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	alice := repo.seed(t, "alice", policy.RoleUser)
	repo.seed(t, "bob", policy.RoleUser)

	updated, err := svc.UpdateMe(ctx, alice.ID, UpdateUserRequest{
		Username:  strPtr("alice"),
		FirstName: strPtr("Alice"),
	})
	require.NoError(t, err, "keeping one's own username is not a conflict")
	require.NotNil(t, updated.FirstName)
	assert.Equal(t, "Alice", *updated.FirstName)

	_, err = svc.UpdateMe(ctx, alice.ID, UpdateUserRequest{Username: strPtr("bob")})
	assert.ErrorIs(t, err, ErrUsernameExists)

	updated, err = svc.UpdateUser(ctx, alice.ID, UpdateUserRequest{Username: strPtr("alice2")})
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)
	require.NotNil(t, updated.FirstName, "untouched fields survive")

	_, err = svc.UpdateMe(ctx, "", UpdateUserRequest{})
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestStatusAndVerification(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	u := repo.seed(t, "alice", policy.RoleUser)

	got, err := svc.SetStatusAs(ctx, policy.RoleSuperAdmin, u.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = svc.VerifyEmailAs(ctx, policy.RoleAdmin, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsEmailVerified)

	require.NoError(t, svc.UpdateLastLogin(ctx, u.ID))
	info, err := svc.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, info.LastLoginAt)

	counts, err := svc.CountByRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[policy.RoleUser])
}
