package auth

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]Account)}
}

func (m *memAccounts) CreateAccount(_ context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.Username]; ok {
		return ErrAccountExists
	}
	m.accounts[a.Username] = a
	return nil
}

func (m *memAccounts) GetAccount(_ context.Context, username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[username]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memAccounts) UpdateAccount(_ context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.accounts[a.Username]
	if !ok {
		return ErrAccountNotFound
	}
	cur.PasswordHash = a.PasswordHash
	cur.Role = a.Role
	m.accounts[a.Username] = cur
	return nil
}

func (m *memAccounts) DeleteAccount(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, username)
	return nil
}

func (m *memAccounts) ListAccounts(_ context.Context) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memAccounts) names() []string {
	list, _ := m.ListAccounts(context.Background())
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Username
	}
	return out
}

func TestEnsureDefaultAdmin(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccounts(newMemAccounts(), bcrypt.MinCost)

	// GIVEN: no accounts
	// WHEN: default admin is ensured twice with the same password
	first, err := accounts.EnsureDefaultAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)
	again, err := accounts.EnsureDefaultAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)

	// THEN: created once, then left alone
	assert.Equal(t, AdminCreated, first)
	assert.Equal(t, AdminUnchanged, again)

	a, err := accounts.Authenticate(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, a.Role)
}

func TestEnsureDefaultAdmin_ResetsPasswordAndRole(t *testing.T) {
	ctx := context.Background()
	store := newMemAccounts()
	accounts := NewAccounts(store, bcrypt.MinCost)

	// GIVEN: the admin account was demoted and its password changed
	_, err := accounts.Create(ctx, "admin", "changed", RoleSeller, "")
	require.NoError(t, err)

	// WHEN: the default admin is ensured
	change, err := accounts.EnsureDefaultAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)

	// THEN: the configured password and the admin role are back
	assert.Equal(t, AdminReset, change)
	a, err := accounts.Authenticate(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, a.Role)

	_, err = accounts.Authenticate(ctx, "admin", "changed")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = accounts.EnsureDefaultAdmin(ctx, " ", "x")
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestSync_AddsAndUpdates(t *testing.T) {
	ctx := context.Background()
	store := newMemAccounts()
	accounts := NewAccounts(store, bcrypt.MinCost)
	_, err := accounts.EnsureDefaultAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)
	_, err = accounts.Create(ctx, "karim", "old", RoleAdmin, "admin")
	require.NoError(t, err)
	_, err = accounts.Create(ctx, "nadia", "same", RoleAdmin, "admin")
	require.NoError(t, err)

	// WHEN: a sheet adds rahim, changes karim's password and repeats nadia
	res, err := accounts.Sync(ctx, []Credential{
		{Username: " rahim ", Password: " pw1 "},
		{Username: "karim", Password: "new"},
		{Username: "nadia", Password: "same"},
		{Username: "", Password: "blank"},
	}, false)
	require.NoError(t, err)

	// THEN
	assert.Equal(t, SyncResult{Added: 1, Updated: 1, Unchanged: 1, Skipped: 1}, res)

	a, err := accounts.Authenticate(ctx, "rahim", "pw1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, a.Role)
	assert.Equal(t, "sync", a.CreatedBy)

	_, err = accounts.Authenticate(ctx, "karim", "new")
	require.NoError(t, err)
	_, err = accounts.Authenticate(ctx, "karim", "old")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSync_RemoveMissing(t *testing.T) {
	ctx := context.Background()
	store := newMemAccounts()
	accounts := NewAccounts(store, bcrypt.MinCost)
	_, err := accounts.EnsureDefaultAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)
	for _, name := range []string{"karim", "nadia"} {
		_, err = accounts.Create(ctx, name, "pw", RoleAdmin, "admin")
		require.NoError(t, err)
	}
	_, err = accounts.Create(ctx, "seller1", "pw", RoleSeller, "admin")
	require.NoError(t, err)

	// GIVEN: a sheet listing only karim
	sheet := []Credential{{Username: "karim", Password: "pw"}}

	// WHEN: synced without removal, nothing is deleted
	res, err := accounts.Sync(ctx, sheet, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Removed)
	assert.Equal(t, []string{"admin", "karim", "nadia", "seller1"}, store.names())

	// WHEN: synced with removal
	res, err = accounts.Sync(ctx, sheet, true)
	require.NoError(t, err)

	// THEN: nadia goes; the default admin and sellers stay
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, []string{"admin", "karim", "seller1"}, store.names())
}

func TestSync_NeverTouchesDefaultAdmin(t *testing.T) {
	ctx := context.Background()
	store := newMemAccounts()
	accounts := NewAccounts(store, bcrypt.MinCost)
	_, err := accounts.EnsureDefaultAdmin(ctx, "boss", "boss123")
	require.NoError(t, err)

	// WHEN: the sheet lists the default admin with another password
	res, err := accounts.Sync(ctx, []Credential{{Username: "BOSS", Password: "hijack"}}, true)
	require.NoError(t, err)

	// THEN: the row is skipped and the account keeps its password
	assert.Equal(t, SyncResult{Skipped: 1}, res)
	_, err = accounts.Authenticate(ctx, "boss", "boss123")
	require.NoError(t, err)
	assert.Equal(t, []string{"boss"}, store.names())
}

func TestAccounts_Create(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccounts(newMemAccounts(), bcrypt.MinCost)

	a, err := accounts.Create(ctx, " rahim ", "secret", RoleSeller, "admin")
	require.NoError(t, err)
	assert.Equal(t, "rahim", a.Username)
	assert.Equal(t, "admin", a.CreatedBy)
	assert.NotEqual(t, "secret", a.PasswordHash)

	_, err = accounts.Create(ctx, "rahim", "x", RoleSeller, "admin")
	assert.ErrorIs(t, err, ErrAccountExists)

	_, err = accounts.Create(ctx, "karim", "x", Role("root"), "admin")
	assert.ErrorIs(t, err, ErrInvalidAccount)

	_, err = accounts.Create(ctx, "karim", "", RoleSeller, "admin")
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	accounts := NewAccounts(newMemAccounts(), bcrypt.MinCost)

	_, err := accounts.Authenticate(context.Background(), "nobody", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokens_IssueAndValidate(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tokens := NewTokens("test-secret", 0).WithClock(func() time.Time { return now })
	assert.Equal(t, DefaultSessionTTL, tokens.TTL())

	sess, err := tokens.Issue(Account{Username: "admin", Role: RoleAdmin})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.SessionID)
	assert.Equal(t, now.Add(2*time.Hour), sess.ExpiresAt)

	claims, err := tokens.Validate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, sess.SessionID, claims.SessionID())
	assert.True(t, claims.IsAdmin())
}

func TestTokens_SessionIDsAreDistinct(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	a, err := tokens.Issue(Account{Username: "s1", Role: RoleSeller})
	require.NoError(t, err)
	b, err := tokens.Issue(Account{Username: "s1", Role: RoleSeller})
	require.NoError(t, err)

	assert.NotEqual(t, a.SessionID, b.SessionID)
}

func TestTokens_Expired(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tokens := NewTokens("test-secret", 2*time.Hour).WithClock(func() time.Time { return now })

	sess, err := tokens.Issue(Account{Username: "s1", Role: RoleSeller})
	require.NoError(t, err)

	// WHEN: two hours and a minute pass
	now = now.Add(2*time.Hour + time.Minute)

	_, err = tokens.Validate(sess.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokens_WrongSecret(t *testing.T) {
	sess, err := NewTokens("one", time.Hour).Issue(Account{Username: "s1", Role: RoleSeller})
	require.NoError(t, err)

	_, err = NewTokens("two", time.Hour).Validate(sess.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokens("one", time.Hour).Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokens_Revoke(t *testing.T) {
	// GIVEN: two live sessions for the same seller
	tokens := NewTokens("secret", time.Hour)
	a, err := tokens.Issue(Account{Username: "s1", Role: RoleSeller})
	require.NoError(t, err)
	b, err := tokens.Issue(Account{Username: "s1", Role: RoleSeller})
	require.NoError(t, err)

	// WHEN: the first one logs out
	claims, err := tokens.Validate(a.Token)
	require.NoError(t, err)
	tokens.Revoke(claims)

	// THEN: only the first token stops working
	_, err = tokens.Validate(a.Token)
	assert.ErrorIs(t, err, ErrRevokedToken)
	_, err = tokens.Validate(b.Token)
	assert.NoError(t, err)
}
