package flip

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"flipmarket/internal/flip/broker"
	"flipmarket/internal/flip/catalog"
	"flipmarket/internal/flip/checkout"
	"flipmarket/internal/flip/host"
	fliphttp "flipmarket/internal/flip/http"
	"flipmarket/internal/flip/oracle"
	"flipmarket/internal/flip/repo"
	"flipmarket/internal/flip/ws"
)

type moduleState struct {
	catalog   *catalog.Catalog
	pricer    *oracle.Client
	purchases *repo.PurchasesRepo
	pipeline  *checkout.Pipeline
	registry  *host.Registry
	hub       *ws.Hub
	server    *fliphttp.Server
	logger    Logger
	cfg       FlipConfig
}

func ensureModule(deps *FlipDeps) (*moduleState, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	if deps.module != nil {
		return deps.module, nil
	}

	cat := deps.Catalog
	if cat == nil && deps.Config.CatalogPath != "" {
		loaded, err := catalog.Load(deps.Config.CatalogPath)
		if err != nil {
			return nil, err
		}
		cat = loaded
	}
	if cat == nil {
		cat = catalog.Default()
	}

	pricer := oracle.NewClient(deps.HTTPClient, deps.Config.PricingURL, deps.Config.PricingTimeout)

	var (
		purchases  *repo.PurchasesRepo
		ledger     checkout.Recorder
		lister     fliphttp.PurchaseLister
		publishers []checkout.Publisher
	)
	if deps.DB != nil {
		purchases = repo.NewPurchasesRepo(deps.DB, deps.DBDriver)
		ledger = purchases
		lister = purchases
	}
	if deps.RDB != nil {
		publishers = append(publishers, broker.NewRedisPublisher(deps.RDB))
	}
	if deps.JS != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		js, err := broker.NewJetStreamPublisher(ctx, deps.JS)
		cancel()
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, js)
	}
	pipeline := checkout.NewPipeline(ledger, deps.Logger, publishers...)

	hub := ws.NewHub(deps.Logger)
	registry := host.NewRegistry(cat, host.Deps{
		Pricer:    pricer,
		Committer: pipeline,
		Listener:  hub.PushSession,
	}, deps.Config.MaxViewers)
	server := fliphttp.NewServer(deps.Logger, registry, hub, lister, deps.Config.FlipWait)

	deps.module = &moduleState{
		catalog:   cat,
		pricer:    pricer,
		purchases: purchases,
		pipeline:  pipeline,
		registry:  registry,
		hub:       hub,
		server:    server,
		logger:    deps.Logger,
		cfg:       deps.Config,
	}
	return deps.module, nil
}

// RegisterFlipRoutes wires HTTP and WebSocket routes into the provided mux.
func RegisterFlipRoutes(mux *http.ServeMux, deps *FlipDeps) error {
	module, err := ensureModule(deps)
	if err != nil {
		return err
	}
	module.server.RegisterRoutes(mux)
	return nil
}

// StartFlipWorkers prepares storage and launches background maintenance.
// Workers stop when ctx is cancelled.
func StartFlipWorkers(ctx context.Context, deps *FlipDeps) error {
	module, err := ensureModule(deps)
	if err != nil {
		return err
	}
	if module.purchases != nil {
		if err := module.purchases.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("flip purchases schema: %w", err)
		}
	}
	module.logger.Infof("flip module ready: %d items, pricing service %s", module.catalog.Len(), module.cfg.PricingURL)
	go module.startViewerSweep(ctx)
	return nil
}

func (m *moduleState) startViewerSweep(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ViewerSweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if evicted := m.registry.Sweep(now, m.cfg.ViewerIdleTTL); len(evicted) > 0 {
				m.logger.Infof("evicted %d idle viewers", len(evicted))
			}
		}
	}
}
