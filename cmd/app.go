package cmd

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"midiseq/config"
	"midiseq/debug"
	"midiseq/midi"
	"midiseq/sequencer"
)

// app is the engine shared by every command that plays
type app struct {
	cfg     *config.Config
	storage *sequencer.Storage
	box     *midi.Outbox
	router  *midi.Router
	seq     *sequencer.Sequencer
	store   *sequencer.ProjectStore
	saver   *sequencer.AutoSaver
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	if project != "" {
		cfg.Project.Name = project
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) error {
	if err := debug.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	if cfg.Log.File != "" {
		if err := debug.Enable(cfg.Log.File); err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
	}
	return nil
}

func newApp(cfg *config.Config, open midi.Opener) (*app, error) {
	ports := len(cfg.Outputs)
	if ports == 0 {
		ports = sequencer.DefaultPorts
	}
	storage := sequencer.NewStorage(sequencer.Options{
		PPQN:  cfg.Transport.PPQN,
		Tempo: cfg.Transport.Tempo,
		Ports: ports,
	})

	dir, err := cfg.ProjectsDir()
	if err != nil {
		return nil, err
	}
	store := sequencer.NewProjectStore(dir)
	switch err := store.Load(cfg.Project.Name, "", storage); {
	case err == nil:
		debug.Log("project", "loaded %s: %d tracks", cfg.Project.Name, storage.TrackCount())
	case errors.Is(err, sequencer.ErrNotFound):
		debug.Log("project", "new project %s", cfg.Project.Name)
	default:
		return nil, fmt.Errorf("load project %s: %w", cfg.Project.Name, err)
	}
	if storage.TrackCount() == 0 {
		storage.AddTrack()
	}

	box := midi.NewOutbox()
	a := &app{
		cfg:     cfg,
		storage: storage,
		box:     box,
		router:  midi.NewRouter(cfg.PortNames(), open),
		seq:     sequencer.New(storage, box),
		store:   store,
	}
	if cfg.Project.AutosaveDelay > 0 {
		a.saver = sequencer.NewAutoSaver(store, cfg.Project.Name, storage, cfg.Project.AutosaveDelay)
	}
	return a, nil
}

// run drives the router and sequencer alongside front. Returning from
// front stops everything.
func (a *app) run(parent context.Context, front func(context.Context) error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.router.Run(gctx, a.box) })
	g.Go(func() error { return a.seq.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return front(gctx)
	})

	err := g.Wait()
	// The sequencer may release held notes after the router has stopped.
	a.router.Flush(a.box)
	a.box.Close()
	if a.saver != nil {
		a.saver.Flush()
	}

	sent, failed := a.router.Stats()
	debug.Log("app", "stopped: %d sent, %d failed, %d dropped", sent, failed, a.seq.Dropped())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
