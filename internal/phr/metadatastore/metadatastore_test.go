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

package metadatastore

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
	"github.com/sesphr/srsbroker/internal/phr/policy"
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

func seedUser(t *testing.T, pool *pgxpool.Pool, id string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, email, display_name, password_hash, role)
		VALUES ($1, $1 || '@example.com', 'Test User', 'hash', 'owner')`, id)
	require.NoError(t, err)
}

func newStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	pool := freshDB(t)
	return NewFromPool(pool), pool
}

func TestStore_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, pool := newStore(t)
	ctx := context.Background()
	seedUser(t, pool, "owner1")

	rec := Record{
		Name:       "obj1",
		OwnerID:    "owner1",
		Policy:     "Role:Doctor",
		WrappedKey: []byte{0xde, 0xad},
		Nonce:      []byte{0xbe, 0xef},
	}
	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, "obj1")
	require.NoError(t, err)
	assert.Equal(t, "owner1", got.OwnerID)
	assert.Equal(t, "Role:Doctor", got.Policy)
	assert.Equal(t, ModeBroker, got.Mode)
	assert.Empty(t, got.RevokedIDs)
}

func TestStore_Get_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := newStore(t)
	_, err := s.Get(context.Background(), "no-such-object")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AddRevokedID_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, pool := newStore(t)
	ctx := context.Background()
	seedUser(t, pool, "owner1")
	require.NoError(t, s.Create(ctx, Record{Name: "obj1", OwnerID: "owner1", Policy: "Role:Doctor"}))

	require.NoError(t, s.AddRevokedID(ctx, "obj1", "target1"))
	require.NoError(t, s.AddRevokedID(ctx, "obj1", "target1"))

	got, err := s.Get(ctx, "obj1")
	require.NoError(t, err)
	assert.Equal(t, []string{"target1"}, got.RevokedIDs, "repeated revocation of the same target does not duplicate")
}

func TestStore_Blanket(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, pool := newStore(t)
	ctx := context.Background()
	seedUser(t, pool, "owner1")
	require.NoError(t, s.Create(ctx, Record{Name: "obj1", OwnerID: "owner1", Policy: "Role:Doctor"}))

	require.NoError(t, s.Blanket(ctx, "obj1", policy.RevokedPolicy))

	got, err := s.Get(ctx, "obj1")
	require.NoError(t, err)
	assert.Equal(t, policy.RevokedPolicy, got.Policy)
}

func TestStore_ListOwnedAndAccessible(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, pool := newStore(t)
	ctx := context.Background()
	seedUser(t, pool, "owner1")
	seedUser(t, pool, "owner2")

	require.NoError(t, s.Create(ctx, Record{Name: "obj1", OwnerID: "owner1", Policy: "Role:Doctor"}))
	require.NoError(t, s.Create(ctx, Record{Name: "obj2", OwnerID: "owner2", Policy: "Role:Patient"}))

	owned, err := s.ListOwned(ctx, "owner1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "obj1", owned[0].Name)

	accessible, err := s.ListAccessible(ctx, "owner1")
	require.NoError(t, err)
	require.Len(t, accessible, 1)
	assert.Equal(t, "obj2", accessible[0].Name)
}
