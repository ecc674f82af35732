package main

import (
	"fmt"
	"os"

	"github.com/caldew/loom/internal/catalog"
	"github.com/caldew/loom/internal/config"
	"github.com/caldew/loom/internal/foundry"
	"github.com/caldew/loom/internal/platform"
	"github.com/caldew/loom/internal/readiness"
	"github.com/caldew/loom/internal/warehouse"
	"github.com/caldew/loom/internal/workflow"
	"github.com/caldew/loom/internal/workspace"
)

// app bundles the constructed clients a command needs: the platform
// transport, the three service clients, the workspace ledger, and a workflow
// runner wired with all of them.
type app struct {
	cfg       config.Config
	api       *platform.Client
	catalog   *catalog.Client
	warehouse *warehouse.Client
	foundry   *foundry.Client
	store     *workspace.Store
	runner    *workflow.Runner

	closeStore bool
}

// newApp is a var so command tests can substitute a fixture.
var newApp = func() (*app, error) {
	cfg, err := config.Load(config.Resolve(configPath))
	if err != nil {
		return nil, err
	}

	api := platform.New(cfg.Platform.BaseURL, cfg.Platform.APIKey)
	cat := catalog.NewClient(api)
	wh := warehouse.NewClient(api)
	fnd := foundry.NewClient(api)

	store, err := workspace.Open(cfg.Workspace.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening workspace: %w", err)
	}

	runner := &workflow.Runner{
		Catalog:   cat,
		Warehouse: wh,
		Foundry:   fnd,
		Ledger:    store,
		Waiter:    readiness.New(cfg.Wait.Interval, cfg.Wait.MaxWait),
		Out:       os.Stderr,
	}

	return &app{
		cfg:        cfg,
		api:        api,
		catalog:    cat,
		warehouse:  wh,
		foundry:    fnd,
		store:      store,
		runner:     runner,
		closeStore: true,
	}, nil
}

// Close releases the workspace when this app owns it. Test fixtures manage
// their store's lifetime themselves.
func (a *app) Close() {
	if !a.closeStore {
		return
	}
	if err := a.store.Close(); err != nil {
		printWarning("closing workspace: %v", err)
	}
}
