package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/NicolasHaas/portalmod/pkg/logging"
	"github.com/NicolasHaas/portalmod/pkg/server"
	"github.com/NicolasHaas/portalmod/pkg/store"
	"github.com/NicolasHaas/portalmod/pkg/version"
)

func main() {
	configFile := flag.String("config", "", "YAML configuration file (optional)")
	listenAddr := flag.String("listen", "", "HTTP bind address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database file path (overrides config)")
	usersFile := flag.String("users-file", "", "YAML file of users to import on startup")
	logLevel := flag.String("log-level", "", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "", "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	cfg, err := server.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	overrideString(&cfg.ListenAddr, *listenAddr)
	overrideString(&cfg.DBPath, *dbPath)
	overrideString(&cfg.UsersFile, *usersFile)
	overrideString(&cfg.Log.Level, *logLevel)
	overrideString(&cfg.Log.Format, *logFormat)

	logger, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, server.Dependencies{Store: st, Logger: logger})
	if err != nil {
		_ = st.Close()
		slog.Error("create server", "err", err)
		os.Exit(1)
	}
	slog.Info("starting portalmod", "version", version.Full(), "db", cfg.DBPath)
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
