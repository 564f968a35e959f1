package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rumor-ml/commons.systems/assetsync/internal/config"
	"github.com/rumor-ml/commons.systems/assetsync/internal/controller"
	"github.com/rumor-ml/commons.systems/assetsync/internal/enrich"
	"github.com/rumor-ml/commons.systems/assetsync/internal/gcp"
	"github.com/rumor-ml/commons.systems/assetsync/internal/history"
	"github.com/rumor-ml/commons.systems/assetsync/internal/permission"
	"github.com/rumor-ml/commons.systems/assetsync/internal/remote"
	"github.com/rumor-ml/commons.systems/assetsync/internal/source"
	"github.com/rumor-ml/commons.systems/assetsync/internal/staging"
	"github.com/rumor-ml/commons.systems/assetsync/internal/store"
	"github.com/rumor-ml/commons.systems/assetsync/internal/syncer"
)

// engine holds every component a sync run needs
type engine struct {
	store        store.Store
	staging      *staging.Area
	index        remote.Index
	history      history.Store
	permissions  permission.Checker
	orchestrator *syncer.Orchestrator
	controller   *controller.Controller

	closers []func() error
}

// newEngine opens the record store, connects the remote and assembles the
// orchestrator and controller. progress may be nil.
func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, progress chan<- syncer.Progress) (_ *engine, err error) {
	if err := cfg.RequireSource(); err != nil {
		return nil, err
	}
	if err := cfg.RequireRemote(); err != nil {
		return nil, err
	}

	e := &engine{permissions: permission.NewFilesystem(cfg.Source.Dir)}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	e.store, err = store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, e.store.Close)

	if cfg.Staging.Dir != "" {
		e.staging, err = staging.Open(cfg.Staging.Dir)
		if err != nil {
			return nil, err
		}
	}

	if err := e.connectRemote(ctx, cfg, logger); err != nil {
		return nil, err
	}

	opts := []syncer.Option{
		syncer.WithLogger(logger),
		syncer.WithNormalizer(enrich.NewNormalizer(enrich.WithJPEGQuality(cfg.Enrich.JPEGQuality))),
		syncer.WithEnricher(newEnricher(cfg.Enrich)),
		syncer.WithHistory(e.history),
	}
	if e.staging != nil {
		opts = append(opts, syncer.WithStaging(e.staging))
	}
	if progress != nil {
		opts = append(opts, syncer.WithProgress(progress))
	}

	e.orchestrator, err = syncer.New(newSource(cfg.Source), e.store, e.index, opts...)
	if err != nil {
		return nil, err
	}

	var ctrlOpts []controller.Option
	if e.staging != nil {
		ctrlOpts = append(ctrlOpts, controller.WithStaging(e.staging))
	}
	e.controller, err = controller.New(controller.Config{WatchDebounce: cfg.Sync.WatchDebounce}, e.orchestrator, e.permissions, e.store, logger, ctrlOpts...)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// connectRemote builds the index for the configured backend. Only the gcs
// backend persists run history; the others keep it in memory.
func (e *engine) connectRemote(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	e.history = history.NewMemory()

	switch cfg.Remote.Backend {
	case config.BackendGCS:
		clients, err := gcp.NewClients(ctx, cfg.Remote.ProjectID)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, clients.Close)
		e.index = remote.NewGCSIndex(clients.Storage, clients.Firestore, cfg.Remote.Bucket)
		e.history = history.NewFirestoreStore(clients.Firestore)

	case config.BackendS3:
		client, err := remote.NewS3Client(ctx, cfg.Remote.Region, cfg.Remote.Endpoint)
		if err != nil {
			return err
		}
		e.index = remote.NewS3Index(client, cfg.Remote.Bucket)

	default:
		idx, err := remote.NewHTTPIndex(cfg.Remote.URL,
			remote.WithHTTPClient(&http.Client{Timeout: cfg.Remote.Timeout}),
			remote.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		e.index = idx
	}
	return nil
}

// Close releases the store and remote clients
func (e *engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && !errors.Is(err, store.ErrClosed) {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

func newSource(cfg config.SourceConfig) *source.FilesystemSource {
	var opts []source.FilesystemOption
	if len(cfg.Extensions) > 0 {
		opts = append(opts, source.WithExtensions(cfg.Extensions...))
	}
	return source.NewFilesystemSource(cfg.Dir, opts...)
}

func newEnricher(cfg config.EnrichConfig) *enrich.Enricher {
	var opts []enrich.Option
	if !cfg.Thumbnails {
		opts = append(opts, enrich.WithThumbnailer(nil))
	}
	if cfg.GeocoderURL != "" {
		opts = append(opts, enrich.WithGeocoder(enrich.NewHTTPGeocoder(cfg.GeocoderURL, cfg.UserAgent, cfg.GeocodeTimeout)))
	}
	return enrich.New(opts...)
}

// openStore opens the record store alone, for commands that only read records
func openStore(cfg *config.Config) (store.Store, error) {
	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	return st, nil
}
