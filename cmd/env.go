package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/config"
	"github.com/concierge-labs/concierge/internal/inference"
	"github.com/concierge-labs/concierge/internal/insight"
	"github.com/concierge-labs/concierge/internal/ledger"
	"github.com/concierge-labs/concierge/internal/lock"
	"github.com/concierge-labs/concierge/internal/persist"
	"github.com/concierge-labs/concierge/internal/provider"
	"github.com/concierge-labs/concierge/internal/resilience"
	"github.com/concierge-labs/concierge/internal/store"
	"github.com/concierge-labs/concierge/pkg/broker"
	"github.com/concierge-labs/concierge/pkg/chain"
	"github.com/concierge-labs/concierge/pkg/storage"
	"github.com/concierge-labs/concierge/pkg/vault"
)

// appEnv holds the clients and services used by the commands.
type appEnv struct {
	Chain      *chain.Client
	Broker     *broker.Client
	Storage    storage.Client
	Vault      *vault.Client
	Store      store.Store
	Account    *ledger.Account
	Funder     *ledger.Funder
	Reconciler *ledger.Reconciler
	Selector   *provider.Selector
	Pipeline   *insight.Pipeline

	redis *redis.Client
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Chain != nil {
		e.Chain.Close()
	}
}

// initEnv dials the chain, binds the contracts, opens the run store and
// wires the insight pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	env := &appEnv{}
	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	var err error
	env.Chain, err = chain.Dial(ctx, chain.Config{
		RPCURL:     cfg.Chain.RPCURL,
		PrivateKey: cfg.Chain.PrivateKey,
		ChainID:    cfg.Chain.ChainID,
		TxTimeout:  time.Duration(cfg.Chain.TxTimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	ledgerContract, err := env.Chain.Bind(cfg.Chain.LedgerAddress, broker.LedgerABI)
	if err != nil {
		return nil, eris.Wrap(err, "bind ledger contract")
	}
	servingContract, err := env.Chain.Bind(cfg.Chain.ServingAddress, broker.ServingABI)
	if err != nil {
		return nil, eris.Wrap(err, "bind serving contract")
	}
	vaultContract, err := env.Chain.Bind(cfg.Chain.VaultAddress, vault.ABI)
	if err != nil {
		return nil, eris.Wrap(err, "bind vault contract")
	}

	providerHTTP := &http.Client{Timeout: time.Duration(cfg.Insight.RequestTimeoutSecs) * time.Second}
	env.Broker = broker.New(ledgerContract, servingContract, env.Chain.Key(), broker.WithHTTPClient(providerHTTP))
	env.Vault = vault.New(vaultContract)
	env.Storage = newStorageClient(cfg.Storage)

	env.Store, err = initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := env.Store.Migrate(ctx); err != nil {
		return nil, eris.Wrap(err, "migrate store")
	}

	locker, err := env.initLocker(ctx)
	if err != nil {
		return nil, err
	}

	settings, err := ledger.SettingsFromConfig(cfg.Ledger)
	if err != nil {
		return nil, err
	}
	env.Account = ledger.NewAccount(env.Broker, locker, settings)
	env.Funder = ledger.NewFunder(env.Broker, locker, settings)
	env.Reconciler = ledger.NewReconciler(env.Broker, locker, settings)
	env.Selector = provider.NewSelector(env.Broker)

	criteria, err := selectionCriteria(cfg.Insight)
	if err != nil {
		return nil, err
	}
	env.Pipeline = insight.New(insight.Deps{
		Funder:    env.Reconciler,
		Selector:  env.Selector,
		Invoker:   inference.NewInvoker(env.Broker, inference.WithHTTPClient(providerHTTP)),
		Settler:   env.Broker,
		Persister: persist.New(env.Storage, env.Vault),
		Store:     env.Store,
	}, insight.Options{
		RequiredUnits: cfg.Insight.RequiredUnits,
		Criteria:      criteria,
	})

	zap.L().Info("environment ready",
		zap.String("account", env.Broker.Account()),
		zap.String("store", cfg.Store.Driver),
		zap.String("lock", cfg.Ledger.LockBackend),
	)
	ok = true
	return env, nil
}

func newStorageClient(sc config.StorageConfig) storage.Client {
	return storage.NewClient(sc.IndexerURL, sc.GatewayURL,
		storage.WithRateLimit(sc.RatePerSec),
		storage.WithRetry(resilience.WithAttempts(sc.FetchRetries)),
	)
}

func selectionCriteria(ic config.InsightConfig) (provider.Criteria, error) {
	strategy, err := provider.ParseStrategy(ic.SelectionStrategy)
	if err != nil {
		return provider.Criteria{}, err
	}
	return provider.Criteria{
		Strategy:       strategy,
		ModelSubstring: ic.ModelSubstring,
		ProviderID:     ic.ProviderID,
	}, nil
}

func (e *appEnv) initLocker(ctx context.Context) (lock.Locker, error) {
	if cfg.Ledger.LockBackend != "redis" {
		return lock.NewLocal(), nil
	}
	rdb, err := lock.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	e.redis = rdb
	return lock.NewRedis(rdb, time.Duration(cfg.Ledger.LockTTLSecs)*time.Second), nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "concierge.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
