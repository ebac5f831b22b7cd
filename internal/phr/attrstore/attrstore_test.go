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

package attrstore

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

// seedUser inserts a minimal user row so attribute rows can satisfy the
// foreign key; attrstore itself never creates users.
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

func TestStore_SetGetExplicit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, pool := newStore(t)
	ctx := context.Background()
	seedUser(t, pool, "u1")

	require.NoError(t, s.Set(ctx, "u1", "Department", "Cardiology"))
	require.NoError(t, s.Set(ctx, "u1", "Clearance", "Level2"))

	attrs, err := s.Explicit(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Department": "Cardiology", "Clearance": "Level2"}, attrs)
}

func TestStore_Set_Upsert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, pool := newStore(t)
	ctx := context.Background()
	seedUser(t, pool, "u1")

	require.NoError(t, s.Set(ctx, "u1", "Department", "Cardiology"))
	require.NoError(t, s.Set(ctx, "u1", "Department", "Neurology"))

	attrs, err := s.Explicit(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Neurology", attrs["Department"])
}

func TestStore_Set_RejectsRevokedSentinel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, pool := newStore(t)
	ctx := context.Background()
	seedUser(t, pool, "u1")

	err := s.Set(ctx, "u1", "Role", "__REVOKED__")
	assert.ErrorIs(t, err, ErrInvalidAttributeValue)
}

func TestStore_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, pool := newStore(t)
	ctx := context.Background()
	seedUser(t, pool, "u1")

	require.NoError(t, s.Set(ctx, "u1", "Department", "Cardiology"))
	require.NoError(t, s.Delete(ctx, "u1", "Department"))
	require.NoError(t, s.Delete(ctx, "u1", "Department"), "deleting a missing attribute is not an error")

	attrs, err := s.Explicit(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

func TestStore_EffectiveBag(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, pool := newStore(t)
	ctx := context.Background()
	seedUser(t, pool, "u1")

	require.NoError(t, s.Set(ctx, "u1", "Department", "Cardiology"))

	bag, err := s.EffectiveBag(ctx, "u1", "reader")
	require.NoError(t, err)
	assert.Equal(t, "Cardiology", bag["Department"])
	assert.Equal(t, "Doctor", bag[RoleAttributeKey], "reader renders as the title-cased Doctor label")
}

func TestCanonicalRoleLabel(t *testing.T) {
	assert.Equal(t, "Patient", CanonicalRoleLabel("owner"))
	assert.Equal(t, "Doctor", CanonicalRoleLabel("reader"))
	assert.Equal(t, "Admin", CanonicalRoleLabel("admin"))
	assert.Equal(t, "superuser", CanonicalRoleLabel("superuser"), "unknown roles pass through unchanged")
}
