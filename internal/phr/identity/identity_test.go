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

package identity

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-logr/zapr"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	pgmigrate "github.com/sesphr/srsbroker/internal/phr/postgres"
)

var testConnStr string

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("phr_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	testConnStr, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}

	os.Exit(code)
}

func freshDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbName := fmt.Sprintf("test_%d", time.Now().UnixNano())

	db, err := sql.Open("pgx", testConnStr)
	require.NoError(t, err)
	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	connStr := replaceDBName(testConnStr, dbName)

	logger := zapr.NewLogger(zap.Must(zap.NewDevelopment()))
	mg, err := pgmigrate.NewMigrator(connStr, logger)
	require.NoError(t, err)
	require.NoError(t, mg.Up())
	require.NoError(t, mg.Close())

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		mainDB, err := sql.Open("pgx", testConnStr)
		if err == nil {
			_, _ = mainDB.Exec(fmt.Sprintf("DROP DATABASE %s WITH (FORCE)", dbName))
			_ = mainDB.Close()
		}
	})

	return pool
}

func replaceDBName(connStr, newDB string) string {
	qIdx := len(connStr)
	for i, c := range connStr {
		if c == '?' {
			qIdx = i
			break
		}
	}
	slashIdx := 0
	for i := qIdx - 1; i >= 0; i-- {
		if connStr[i] == '/' {
			slashIdx = i
			break
		}
	}
	return connStr[:slashIdx+1] + newDB + connStr[qIdx:]
}

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewFromPool(freshDB(t))
}

func TestStore_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := newStore(t)
	ctx := context.Background()

	u, err := s.Create(ctx, "Doc@Example.com", "Dr. Doc", "hunter2", RoleReader)
	require.NoError(t, err)
	assert.Equal(t, "doc@example.com", u.Email, "email is stored lowercased")
	assert.NotEmpty(t, u.ID)

	byID, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)

	byEmail, err := s.GetByEmail(ctx, "DOC@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID, "email lookup is case-insensitive")
}

func TestStore_Create_DuplicateEmail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "dup@example.com", "First", "pw", RoleOwner)
	require.NoError(t, err)

	_, err = s.Create(ctx, "DUP@example.com", "Second", "pw", RoleOwner)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestStore_GetByID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := newStore(t)
	_, err := s.GetByID(context.Background(), "no-such-user")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Authenticate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "auth@example.com", "Auth User", "correct-horse", RoleOwner)
	require.NoError(t, err)

	u, err := s.Authenticate(ctx, "auth@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "auth@example.com", u.Email)

	_, err = s.Authenticate(ctx, "auth@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrNotFound, "wrong password collapses to ErrNotFound")

	_, err = s.Authenticate(ctx, "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, ErrNotFound, "unknown email collapses to ErrNotFound")
}
