// Command dabir is a terminal client for dabir notifications.
package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/dabir-notify/internal/app"
	"github.com/nhle/dabir-notify/internal/credential"
	"github.com/nhle/dabir-notify/internal/desktop"
	"github.com/nhle/dabir-notify/internal/model"
	"github.com/nhle/dabir-notify/internal/store"
	"github.com/nhle/dabir-notify/internal/theme"
	"github.com/nhle/dabir-notify/internal/zlog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dabir:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", model.DefaultConfigPath(), "path to config.yaml")
	origin := pflag.String("origin", "", "override server.origin")
	writeConfig := pflag.Bool("write-config", false, "write the effective config and exit")
	pflag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *origin != "" {
		cfg.Server.Origin = *origin
	}
	if *writeConfig {
		return model.SaveConfig(*configPath, cfg)
	}

	closeLog, err := zlog.Init(zlog.Options{Path: cfg.Log.Path, Level: cfg.Log.Level})
	if err != nil {
		return err
	}
	defer closeLog()

	theme.Use(cfg.Display.Theme)

	cache, err := store.NewSQLiteStore(cfg.Cache.Path)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer cache.Close()

	opts := app.Options{Cache: cache}
	if cfg.Desktop.Enabled {
		opts.Desktop = desktop.New()
	}

	svc, err := app.NewServices(cfg, opts)
	if err != nil {
		return err
	}
	defer svc.Close()

	signIn := false
	session, err := credential.LoadSession()
	switch {
	case err == nil:
		svc.API.SetSession(session)
	case errors.Is(err, credential.ErrNotFound):
		signIn = true
	default:
		zlog.Warn("loading stored session", zap.Error(err))
		signIn = true
	}

	zlog.Info("starting", zap.String("origin", cfg.Server.Origin), zap.Bool("sign_in", signIn))
	p := tea.NewProgram(app.New(svc, signIn), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}
