/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package identity persists user accounts (email, bcrypt password hash,
// role) backing SessionGate's login flow. It is deliberately thin: the
// interesting work happens in PolicyEvaluator and KeyBroker once they have
// the role this package hands back.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Role values. Unlike the rendered Role attribute (see attrstore), these
// are the internal vocabulary stored on the user record.
const (
	RoleOwner  = "owner"
	RoleReader = "reader"
	RoleAdmin  = "admin"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("identity: user not found")

// ErrEmailTaken is returned by Create when email is already registered.
var ErrEmailTaken = errors.New("identity: email already registered")

// User is one account record.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
}

// Store persists User records in Postgres. Email lookups are
// case-insensitive.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// New creates a Store that owns pool and will close it on Close.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, ownsPool: true}
}

// NewFromPool wraps an existing pool; Close is then a no-op.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, ownsPool: false}
}

// Create hashes password with bcrypt and inserts a new user, generating a
// fresh id. Returns ErrEmailTaken if email is already registered.
func (s *Store) Create(ctx context.Context, email, displayName, password, role string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("identity: hashing password: %w", err)
	}

	u := &User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(email),
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
	}

	const q = `
		INSERT INTO users (id, email, display_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, q, u.ID, u.Email, u.DisplayName, u.PasswordHash, u.Role); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("identity: create %s: %w", u.Email, err)
	}
	return u, nil
}

// Authenticate looks up email (case-insensitively) and compares password
// against the stored bcrypt hash. Returns ErrNotFound for both an unknown
// email and a wrong password, so a caller can never distinguish the two
// from the error alone.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// GetByEmail loads a user by email, case-insensitively.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	const q = `
		SELECT id, email, display_name, password_hash, role
		FROM users WHERE email = $1`
	return scanUser(s.pool.QueryRow(ctx, q, strings.ToLower(email)))
}

// GetByID loads a user by id.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	const q = `
		SELECT id, email, display_name, password_hash, role
		FROM users WHERE id = $1`
	return scanUser(s.pool.QueryRow(ctx, q, id))
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("identity: scan: %w", err)
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Close releases the underlying pool if this Store owns it.
func (s *Store) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}
