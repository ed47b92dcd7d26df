/*
Package auth provides login accounts and signed session tokens.

ROLES:
  admin   Records sales, corrects sales, views reports, adds accounts
  seller  Records sales

DEFAULT ADMIN:
  EnsureDefaultAdmin keeps the configured admin account present with the
  configured password and the admin role. A missing account is created; a
  changed password or role is reset on the next start.

ADMIN SYNC:
  Sync applies an admin sheet (username, password) to the store: new names
  are added, existing ones get the sheet's password and the admin role, and
  with removeMissing admins absent from the sheet are deleted. The default
  admin is never touched by Sync, even when the sheet lists it. Seller
  accounts are only changed when the sheet names them.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleSeller Role = "seller"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSeller
}

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidAccount     = errors.New("username, password and a valid role are required")
	ErrAccountNotFound    = errors.New("account not found")
)

// DefaultAdminUsername is the protected account Sync skips until
// EnsureDefaultAdmin names another one.
const DefaultAdminUsername = "admin"

// Account is a login identity. PasswordHash is a bcrypt hash.
type Account struct {
	Username     string
	PasswordHash string
	Role         Role
	CreatedBy    string
	CreatedAt    time.Time
}

func (a Account) IsAdmin() bool { return a.Role == RoleAdmin }

// AccountStore persists accounts. GetAccount returns (nil, nil) when the
// username is unknown. UpdateAccount rewrites PasswordHash and Role and
// returns ErrAccountNotFound for an unknown username.
type AccountStore interface {
	CreateAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, username string) (*Account, error)
	UpdateAccount(ctx context.Context, a Account) error
	DeleteAccount(ctx context.Context, username string) error
	ListAccounts(ctx context.Context) ([]Account, error)
}

// Accounts manages login accounts over an AccountStore.
type Accounts struct {
	store        AccountStore
	cost         int
	now          func() time.Time
	defaultAdmin string
}

// NewAccounts uses bcrypt.DefaultCost; tests pass bcrypt.MinCost.
func NewAccounts(store AccountStore, cost int) *Accounts {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Accounts{
		store:        store,
		cost:         cost,
		now:          func() time.Time { return time.Now().UTC() },
		defaultAdmin: DefaultAdminUsername,
	}
}

func (s *Accounts) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Create adds an account. createdBy is the admin who added it.
func (s *Accounts) Create(ctx context.Context, username, password string, role Role, createdBy string) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || !role.Valid() {
		return nil, ErrInvalidAccount
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	a := Account{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedBy:    createdBy,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Authenticate returns the account when the password matches.
func (s *Accounts) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	a, err := s.store.GetAccount(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

// Get returns the account or (nil, nil).
func (s *Accounts) Get(ctx context.Context, username string) (*Account, error) {
	return s.store.GetAccount(ctx, username)
}

// =============================================================================
// DEFAULT ADMIN AND SYNC
// =============================================================================

// AdminChange reports what EnsureDefaultAdmin did.
type AdminChange string

const (
	AdminUnchanged AdminChange = "unchanged"
	AdminCreated   AdminChange = "created"
	AdminReset     AdminChange = "reset"
)

// EnsureDefaultAdmin makes the account exist with password and the admin
// role, and remembers username as the account Sync must not touch.
func (s *Accounts) EnsureDefaultAdmin(ctx context.Context, username, password string) (AdminChange, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return AdminUnchanged, ErrInvalidAccount
	}
	s.defaultAdmin = username

	existing, err := s.store.GetAccount(ctx, username)
	if err != nil {
		return AdminUnchanged, err
	}
	if existing == nil {
		_, err = s.Create(ctx, username, password, RoleAdmin, "")
		if errors.Is(err, ErrAccountExists) {
			return AdminUnchanged, nil
		}
		if err != nil {
			return AdminUnchanged, err
		}
		return AdminCreated, nil
	}
	changed, err := s.reset(ctx, *existing, password, RoleAdmin)
	if err != nil || !changed {
		return AdminUnchanged, err
	}
	return AdminReset, nil
}

// reset stores a new hash and role unless the account already matches.
func (s *Accounts) reset(ctx context.Context, a Account, password string, role Role) (bool, error) {
	if a.Role == role && bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil {
		return false, nil
	}
	hash, err := s.hash(password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	a.PasswordHash = hash
	a.Role = role
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return false, err
	}
	return true, nil
}

// Credential is one row of an admin sheet.
type Credential struct {
	Username string
	Password string
}

// SyncResult counts the accounts Sync changed.
type SyncResult struct {
	Added     int
	Updated   int
	Unchanged int
	Removed   int
	Skipped   int // blank rows and the default admin
}

// Sync applies an admin sheet. Later rows for the same username win.
func (s *Accounts) Sync(ctx context.Context, creds []Credential, removeMissing bool) (SyncResult, error) {
	var res SyncResult

	wanted := make(map[string]string, len(creds))
	var order []string
	for _, c := range creds {
		name := strings.TrimSpace(c.Username)
		pw := strings.TrimSpace(c.Password)
		if name == "" || pw == "" || s.isDefaultAdmin(name) {
			res.Skipped++
			continue
		}
		if _, seen := wanted[name]; !seen {
			order = append(order, name)
		}
		wanted[name] = pw
	}

	existing, err := s.store.ListAccounts(ctx)
	if err != nil {
		return res, fmt.Errorf("list accounts: %w", err)
	}
	byName := make(map[string]Account, len(existing))
	for _, a := range existing {
		byName[a.Username] = a
	}

	for _, name := range order {
		pw := wanted[name]
		a, ok := byName[name]
		if !ok {
			if _, err := s.Create(ctx, name, pw, RoleAdmin, "sync"); err != nil {
				return res, fmt.Errorf("add %s: %w", name, err)
			}
			res.Added++
			continue
		}
		changed, err := s.reset(ctx, a, pw, RoleAdmin)
		if err != nil {
			return res, fmt.Errorf("update %s: %w", name, err)
		}
		if changed {
			res.Updated++
		} else {
			res.Unchanged++
		}
	}

	if removeMissing {
		for _, a := range existing {
			if a.Role != RoleAdmin || s.isDefaultAdmin(a.Username) {
				continue
			}
			if _, keep := wanted[a.Username]; keep {
				continue
			}
			if err := s.store.DeleteAccount(ctx, a.Username); err != nil {
				return res, fmt.Errorf("remove %s: %w", a.Username, err)
			}
			res.Removed++
		}
	}
	return res, nil
}

func (s *Accounts) isDefaultAdmin(username string) bool {
	return strings.EqualFold(username, s.defaultAdmin)
}
