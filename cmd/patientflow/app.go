package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/luknerlumina/patientflow/internal/adapters/events"
	"github.com/luknerlumina/patientflow/internal/adapters/persistence"
	"github.com/luknerlumina/patientflow/internal/adapters/storage"
	"github.com/luknerlumina/patientflow/internal/api/handlers"
	"github.com/luknerlumina/patientflow/internal/application/services"
	"github.com/luknerlumina/patientflow/internal/domain/providers"
	"github.com/luknerlumina/patientflow/internal/infrastructure/clients/postgres"
	"github.com/luknerlumina/patientflow/internal/infrastructure/clients/redis"
	"github.com/luknerlumina/patientflow/internal/infrastructure/encryption"
	"github.com/luknerlumina/patientflow/internal/infrastructure/observability"
	"github.com/luknerlumina/patientflow/pkg/config"
	"github.com/luknerlumina/patientflow/pkg/retry"
	"github.com/luknerlumina/patientflow/pkg/secrets"
)

// app holds the wired components shared by every subcommand
type app struct {
	cfg         *config.Config
	sessionDate string

	metrics     *observability.Metrics
	clock       *services.ClockService
	store       *services.PatientStore
	importer    *services.ScheduleImportService
	persistence *services.PersistenceService
	gateway     *persistence.SessionGateway
	bus         providers.EventBus
	checks      map[string]handlers.HealthCheck

	closers []func() error
}

// loadConfig pulls Vault secrets into the environment before reading config
func loadConfig(ctx context.Context) (*config.Config, error) {
	vaultCfg := secrets.LoadVaultConfigFromEnv("")
	result, err := secrets.ApplyVaultSecrets(ctx, vaultCfg)
	if err != nil {
		log.Warn().Err(err).Str("path", vaultCfg.Path).Msg("failed to load secrets from Vault, continuing with environment")
	} else if result.Enabled {
		log.Info().Str("path", result.Path).Int("loaded", result.Loaded).Int("skipped", result.Skipped).Msg("Vault secrets applied")
	}

	return config.Load()
}

func newApp(ctx context.Context, cfg *config.Config, sessionOverride string) (*app, error) {
	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env, cfg.Server.LogLevel)

	a := &app{cfg: cfg, checks: make(map[string]handlers.HealthCheck)}

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			observability.EnableOTelLogs(cfg.OTEL.ServiceName)
			a.closers = append(a.closers, func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return shutdown(ctx)
			})
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	a.metrics = metrics

	loc := cfg.Workflow.Location()
	a.clock = services.NewClockService(loc, services.WithClockLogger(log.Logger))
	if cfg.Clock.StartSimulated {
		a.clock.ToggleSimulation()
	}

	a.sessionDate = sessionOverride
	if a.sessionDate == "" {
		a.sessionDate = cfg.Workflow.SessionDate
	}
	if a.sessionDate == "" {
		a.sessionDate = a.clock.GetCurrentTime().In(loc).Format("2006-01-02")
	}

	codec := a.sessionCodec(ctx)

	localStore, err := storage.NewLocalStore(cfg.Persistence.LocalDir)
	if err != nil {
		return nil, err
	}

	primaryStore, backend := a.primaryStore(ctx, localStore)
	if a.bus == nil {
		a.bus = events.NewMemoryEventBus(log.Logger)
	}
	a.closers = append(a.closers, a.bus.Close)

	a.gateway = persistence.NewSessionGateway(primaryStore, codec, a.bus, log.Logger)
	var fallback providers.PersistenceGateway
	if backend != "local" {
		fallback = persistence.NewSessionGateway(localStore, codec, nil, log.Logger)
	}

	waiting, err := services.NewWaitingSet(cfg.Workflow.WaitingStatuses)
	if err != nil {
		return nil, err
	}
	workflow := services.NewStatusWorkflow(log.Logger, metrics)
	a.store = services.NewPatientStore(a.clock, workflow, waiting, log.Logger)
	a.store.SetWaitRecorder(metrics)

	retryCfg := retry.PersistConfig()
	retryCfg.MaxAttempts = cfg.Persistence.Retry.MaxAttempts
	retryCfg.InitialDelay = cfg.Persistence.Retry.InitialDelay
	retryCfg.MaxDelay = cfg.Persistence.Retry.MaxDelay

	a.persistence = services.NewPersistenceService(a.store, a.gateway, fallback, a.bus, services.PersistenceOptions{
		SessionDate: a.sessionDate,
		Encrypt:     cfg.Persistence.Encrypt,
		Debounce:    cfg.Persistence.Debounce,
		Retry:       retryCfg,
		Backend:     backend,
	}, metrics, log.Logger)

	a.importer = services.NewScheduleImportService(a.store, loc, metrics, log.Logger)

	log.Info().
		Str("session_date", a.sessionDate).
		Str("backend", backend).
		Bool("encrypt", cfg.Persistence.Encrypt).
		Bool("key_loaded", codec != nil).
		Msg("patientflow initialized")
	return a, nil
}

// sessionCodec loads the encryption key. A missing key is not fatal; encrypted
// saves then fail with a persistence error and fall back to local storage.
func (a *app) sessionCodec(ctx context.Context) *encryption.SessionCodec {
	var kp secrets.KeyProvider
	if a.cfg.Vault.Enabled {
		kp = secrets.NewVaultKeyProvider(a.cfg.Vault, a.cfg.Persistence.KeyField, a.cfg.Persistence.KeyVersion)
	} else {
		kp = secrets.NewEnvKeyProvider(a.cfg.Persistence.KeyEnv, a.cfg.Persistence.KeyVersion)
	}

	codec, err := encryption.NewSessionCodecFromProvider(ctx, kp)
	if err != nil {
		if a.cfg.Persistence.Encrypt {
			log.Warn().Err(err).Msg("session encryption key unavailable, encrypted saves will fail")
		}
		return nil
	}
	return codec
}

// primaryStore connects the configured backend. Connection failures degrade to
// the local store.
func (a *app) primaryStore(ctx context.Context, local providers.SnapshotStore) (providers.SnapshotStore, string) {
	switch a.cfg.Persistence.Backend {
	case "redis":
		client, err := redis.NewClient(ctx, &a.cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, using local session storage")
			return local, "local"
		}
		a.closers = append(a.closers, client.Close)
		a.checks["redis"] = client.Ping
		a.bus = events.NewRedisEventBus(client, log.Logger)
		return storage.NewRedisStore(client, 0), "redis"

	case "postgres":
		client, err := postgres.NewClient(ctx, &a.cfg.Database)
		if err != nil {
			log.Warn().Err(err).Msg("PostgreSQL unavailable, using local session storage")
			return local, "local"
		}
		if err := client.EnsureSchema(ctx); err != nil {
			client.Close()
			log.Warn().Err(err).Msg("failed to prepare session table, using local session storage")
			return local, "local"
		}
		a.closers = append(a.closers, client.Close)
		a.checks["postgres"] = client.Ping
		return storage.NewPostgresStore(client), "postgres"
	}
	return local, "local"
}

// close releases resources in reverse order of acquisition
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
