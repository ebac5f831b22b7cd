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

// Command phrserver is the PHR repository's API binary: it wires Postgres,
// the file (optionally KMS-wrapped) key store, the blob store, the
// hash-chained audit log, and the KeyBroker/OwnerOps/SessionGate core into
// one HTTP server, following the same pool-migrate-wire-serve shape
// cmd/session-api uses.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sesphr/srsbroker/internal/phr/attrstore"
	"github.com/sesphr/srsbroker/internal/phr/audit"
	"github.com/sesphr/srsbroker/internal/phr/blobstore"
	"github.com/sesphr/srsbroker/internal/phr/broker"
	"github.com/sesphr/srsbroker/internal/phr/config"
	"github.com/sesphr/srsbroker/internal/phr/httpapi"
	"github.com/sesphr/srsbroker/internal/phr/identity"
	"github.com/sesphr/srsbroker/internal/phr/keystore"
	"github.com/sesphr/srsbroker/internal/phr/metadatastore"
	"github.com/sesphr/srsbroker/internal/phr/ownerops"
	phrpostgres "github.com/sesphr/srsbroker/internal/phr/postgres"
	"github.com/sesphr/srsbroker/internal/phr/session"
	"github.com/sesphr/srsbroker/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}

	log, syncLog, err := logging.NewLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer syncLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := initPool(ctx, cfg.PostgresConn)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.V(1).Info("postgres pool created")

	if err := runMigrations(cfg.PostgresConn, log); err != nil {
		return err
	}
	log.V(1).Info("migrations complete")

	keys, closeKeys, err := initKeyStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeKeys() }()

	blobs, err := blobstore.New(ctx, blobConfig(cfg))
	if err != nil {
		return fmt.Errorf("creating blob store: %w", err)
	}
	defer func() { _ = blobs.Close() }()

	auditLog, err := audit.Open(cfg.AuditLogPath, log)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer func() { _ = auditLog.Close() }()
	audit.MustRegister(prometheus.DefaultRegisterer)
	broker.MustRegister(prometheus.DefaultRegisterer)

	identityStore := identity.New(pool)
	attrStore := attrstore.New(pool)
	metadataStore := metadatastore.New(pool)

	b := broker.New(metadataStore, attrStore, keys, auditLog)
	owner := ownerops.New(metadataStore, blobs, auditLog)

	signingKey := []byte(cfg.SessionSigningKey)
	gate, err := session.New(identityStore, signingKey, cfg.SessionTTL, cfg.SessionSecureCookie)
	if err != nil {
		return fmt.Errorf("creating session gate: %w", err)
	}

	server := httpapi.New(b, owner, gate, identityStore, attrStore, keys, auditLog, blobs, log)
	httpMetrics := httpapi.NewHTTPMetrics()

	apiSrv := &http.Server{Addr: cfg.APIAddr, Handler: server.Handler(httpMetrics)}
	healthSrv := newHealthServer(cfg.HealthAddr, pool)
	metricsSrv := newMetricsServer(cfg.MetricsAddr)

	startHTTPServer(log, "phr API", cfg.APIAddr, apiSrv)
	startHTTPServer(log, "health", cfg.HealthAddr, healthSrv)
	startHTTPServer(log, "metrics", cfg.MetricsAddr, metricsSrv)

	log.Info("phrserver ready",
		"api", cfg.APIAddr,
		"health", cfg.HealthAddr,
		"metrics", cfg.MetricsAddr,
		"blobBackend", cfg.BlobBackend,
		"kmsBackend", cfg.KMSBackend,
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownServers(log, apiSrv, healthSrv, metricsSrv)
	return nil
}

func startHTTPServer(log logr.Logger, name, addr string, srv *http.Server) {
	go func() {
		log.Info("starting server", "server", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "server error", "server", name)
		}
	}()
}

func shutdownServers(log logr.Logger, apiSrv, healthSrv, metricsSrv *http.Server) {
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()

	for _, s := range []struct {
		name string
		srv  *http.Server
	}{
		{"metrics", metricsSrv},
		{"API", apiSrv},
		{"health", healthSrv},
	} {
		if err := s.srv.Shutdown(shutCtx); err != nil {
			log.Error(err, "server shutdown error", "server", s.name)
		}
	}
}

const (
	defaultMaxConns = 25
	defaultMinConns = 5
)

func initPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres connection string: %w", err)
	}
	poolCfg.MaxConns = envInt32("PG_MAX_CONNS", defaultMaxConns)
	poolCfg.MinConns = envInt32("PG_MIN_CONNS", defaultMinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	return pool, nil
}

func envInt32(key string, def int32) int32 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return def
	}
	return int32(n)
}

func runMigrations(connStr string, log logr.Logger) error {
	migrator, err := phrpostgres.NewMigrator(connStr, log)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	_ = migrator.Close()
	return nil
}

// initKeyStore builds the FileKeyStore, optionally wrapping it with a KMS
// envelope per cfg.KMSBackend. The returned close func releases whatever
// envelope client was opened; it is a no-op when no envelope is configured.
func initKeyStore(ctx context.Context, cfg *config.Config) (keystore.KeyStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.KMSBackend {
	case "":
		ks, err := keystore.NewFileKeyStore(cfg.KeyStoreDir)
		if err != nil {
			return nil, noop, fmt.Errorf("creating file key store: %w", err)
		}
		return ks, noop, nil

	case "aws":
		env, err := keystore.NewAWSEnvelope(ctx, cfg.KMSKeyID, cfg.KMSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretKey)
		if err != nil {
			return nil, noop, fmt.Errorf("creating AWS KMS envelope: %w", err)
		}
		ks, err := keystore.NewKMSWrappedKeyStore(cfg.KeyStoreDir, env)
		if err != nil {
			return nil, noop, fmt.Errorf("creating KMS-wrapped key store: %w", err)
		}
		return ks, env.Close, nil

	case "gcp":
		env, err := keystore.NewGCPEnvelope(ctx, cfg.KMSKeyID, []byte(cfg.GCPCredsJSON))
		if err != nil {
			return nil, noop, fmt.Errorf("creating GCP KMS envelope: %w", err)
		}
		ks, err := keystore.NewKMSWrappedKeyStore(cfg.KeyStoreDir, env)
		if err != nil {
			return nil, noop, fmt.Errorf("creating KMS-wrapped key store: %w", err)
		}
		return ks, env.Close, nil

	case "azure":
		env, err := keystore.NewAzureEnvelope(cfg.AzureVaultURL, cfg.AzureKeyName)
		if err != nil {
			return nil, noop, fmt.Errorf("creating Azure Key Vault envelope: %w", err)
		}
		ks, err := keystore.NewKMSWrappedKeyStore(cfg.KeyStoreDir, env)
		if err != nil {
			return nil, noop, fmt.Errorf("creating KMS-wrapped key store: %w", err)
		}
		return ks, env.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown kms backend %q", cfg.KMSBackend)
	}
}

func blobConfig(cfg *config.Config) blobstore.Config {
	bc := blobstore.Config{
		Backend:  blobstore.BackendType(cfg.BlobBackend),
		LocalDir: cfg.BlobLocalDir,
		Bucket:   cfg.BlobBucket,
	}
	switch bc.Backend {
	case blobstore.BackendS3:
		bc.S3 = &blobstore.S3Config{
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		}
	case blobstore.BackendGCS:
		bc.GCS = &blobstore.GCSConfig{}
	case blobstore.BackendAzure:
		bc.Azure = &blobstore.AzureConfig{}
	}
	return bc
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

func newHealthServer(addr string, pool *pgxpool.Pool) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("postgres unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux}
}
