package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/project"
	"github.com/inkwell-app/inkwell/internal/remote"
	"github.com/inkwell-app/inkwell/internal/syncengine"
	"github.com/inkwell-app/inkwell/internal/syncstore"
)

// env bundles everything a command needs to talk to the sync engine for
// one project. Close() releases the database.
type env struct {
	cfg    *config.Config
	layout project.Layout
	proj   *project.ProjectFile
	store  *syncstore.Store
	creds  *remote.FileProvider
	engine *syncengine.Engine
}

func (e *env) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

// openEnv loads config, opens the project at --project, and constructs an
// engine backed by the sync database and the REST transport. onStatus, if
// non-nil, receives engine status transitions.
func openEnv(ctx context.Context, cmd *cobra.Command, logger *log.Logger, onStatus func(prev, next syncengine.Status)) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	root, _ := cmd.Flags().GetString("project")
	layout := project.Layout{Root: root}

	proj, err := project.ReadProjectFile(layout)
	if err != nil {
		return nil, fmt.Errorf("not an Inkwell project (run 'inkwell init' first): %w", err)
	}

	store, err := syncstore.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	creds := remote.NewFileProvider(cfg.TokenFile)
	client := remote.NewClient(cfg.RemoteURL, creds, &remote.ClientConfig{
		Timeout: cfg.TransportTimeout,
		Logger:  logger,
	})

	engineCfg := syncengine.DefaultConfig()
	engineCfg.TransportTimeout = cfg.TransportTimeout
	engineCfg.OnStatusChange = onStatus
	if logger != nil {
		engineCfg.Logger = logger
	}

	eng, err := syncengine.New(ctx, proj.ID, proj.SyncPayload(), store, client, creds, engineCfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &env{
		cfg:    cfg,
		layout: layout,
		proj:   proj,
		store:  store,
		creds:  creds,
		engine: eng,
	}, nil
}

// daemonLogger returns a logger that writes to stderr and, when LogFile is
// set, a size-rotated log file.
func daemonLogger(cfg *config.Config, prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return log.New(w, prefix, log.LstdFlags)
}
