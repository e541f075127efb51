package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/certeq/equipment-certification-backend/common"
	"github.com/certeq/equipment-certification-backend/engine"
	"github.com/certeq/equipment-certification-backend/httpserver"
	"github.com/certeq/equipment-certification-backend/interfaces"
	"github.com/certeq/equipment-certification-backend/metrics"
	"github.com/certeq/equipment-certification-backend/storage"
	"github.com/certeq/equipment-certification-backend/store"
)

// envDefaults carries environment-provided flag defaults so deployments can
// configure the server without a command line.
type envDefaults struct {
	ListenAddr  string `env:"CERTEQ_LISTEN_ADDR" envDefault:"127.0.0.1:8080"`
	MetricsAddr string `env:"CERTEQ_METRICS_ADDR" envDefault:"127.0.0.1:8090"`
	DBPath      string `env:"CERTEQ_DB_PATH" envDefault:"certeq.db"`
	StorageURIs string `env:"CERTEQ_STORAGE" envDefault:""`
	Registrar   string `env:"CERTEQ_REGISTRAR" envDefault:""`
	Certifier   string `env:"CERTEQ_CERTIFIER" envDefault:""`
}

func main() {
	defaults, err := env.ParseAs[envDefaults]()
	if err != nil {
		log.Fatal(err)
	}

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "listen-addr",
			Value: defaults.ListenAddr,
			Usage: "address to listen on for API",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Value: defaults.MetricsAddr,
			Usage: "address to listen on for Prometheus metrics, empty to disable",
		},
		&cli.StringFlag{
			Name:  "db-path",
			Value: defaults.DBPath,
			Usage: "path to the SQLite state database, empty for in-memory only",
		},
		&cli.StringFlag{
			Name:  "storage",
			Value: defaults.StorageURIs,
			Usage: "comma-separated document storage backend URIs (file://, ipfs://, s3://, vault://)",
		},
		&cli.StringFlag{
			Name:     "registrar",
			Value:    defaults.Registrar,
			Usage:    "hex address of the registrar principal",
			Required: defaults.Registrar == "",
		},
		&cli.StringFlag{
			Name:     "certifier",
			Value:    defaults.Certifier,
			Usage:    "hex address of the certifier principal",
			Required: defaults.Certifier == "",
		},
		&cli.BoolFlag{
			Name:  "log-json",
			Value: false,
			Usage: "log in JSON format",
		},
		&cli.BoolFlag{
			Name:  "log-debug",
			Value: false,
			Usage: "log debug messages",
		},
		&cli.BoolFlag{
			Name:  "log-uid",
			Value: false,
			Usage: "generate a uuid and add to all log messages",
		},
		&cli.StringFlag{
			Name:  "log-service",
			Value: common.PackageName,
			Usage: "add 'service' tag to logs",
		},
		&cli.BoolFlag{
			Name:  "pprof",
			Value: false,
			Usage: "enable pprof debug endpoint",
		},
		&cli.Int64Flag{
			Name:  "drain-seconds",
			Value: 45,
			Usage: "seconds to wait in drain HTTP request",
		},
	}

	app := &cli.App{
		Name:  "certification-server",
		Usage: "Serve the equipment certification workflow API",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			metricsAddr := cCtx.String("metrics-addr")
			dbPath := cCtx.String("db-path")
			storageURIs := cCtx.String("storage")
			logJSON := cCtx.Bool("log-json")
			logDebug := cCtx.Bool("log-debug")
			logUID := cCtx.Bool("log-uid")
			logService := cCtx.String("log-service")
			enablePprof := cCtx.Bool("pprof")
			drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

			logger := common.SetupLogger(&common.LoggingOpts{
				Debug:   logDebug,
				JSON:    logJSON,
				Service: logService,
				Version: common.Version,
			})

			if logUID {
				id := uuid.Must(uuid.NewRandom())
				logger = logger.With("uid", id.String())
			}

			registrar, err := interfaces.NewPrincipalFromHex(cCtx.String("registrar"))
			if err != nil {
				logger.Error("Invalid registrar address", "err", err)
				return err
			}
			certifier, err := interfaces.NewPrincipalFromHex(cCtx.String("certifier"))
			if err != nil {
				logger.Error("Invalid certifier address", "err", err)
				return err
			}

			// State store
			var st store.Store = store.NewNopStore()
			if dbPath != "" {
				sqliteStore, err := store.OpenSQLite(dbPath)
				if err != nil {
					logger.Error("Failed to open state database", "err", err, "path", dbPath)
					return err
				}
				defer sqliteStore.Close()
				st = sqliteStore
				logger.Info("State database opened", "path", dbPath)
			}

			eng, err := engine.New(engine.Config{
				Registrar: registrar,
				Certifier: certifier,
				Store:     st,
				Log:       logger,
			})
			if err != nil {
				logger.Error("Failed to create engine", "err", err)
				return err
			}

			// Document storage
			var docStorage interfaces.StorageBackend
			if storageURIs != "" {
				factory := storage.NewStorageBackendFactory(logger)
				docStorage, err = factory.CreateMultiBackend(strings.Split(storageURIs, ","))
				if err != nil {
					logger.Error("Failed to create document storage", "err", err)
					return err
				}
				logger.Info("Document storage configured", "backends", storageURIs)
			}

			var m *metrics.Metrics
			if metricsAddr != "" {
				m = metrics.New(common.PackageName)
			}

			cfg := &httpserver.HTTPServerConfig{
				ListenAddr:               listenAddr,
				MetricsAddr:              metricsAddr,
				Log:                      logger,
				EnablePprof:              enablePprof,
				DrainDuration:            drainDuration,
				GracefulShutdownDuration: 30 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             30 * time.Second,
			}

			handler := httpserver.NewHandler(eng, docStorage, m, logger)
			server, err := httpserver.New(cfg, handler, m)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop",
				"registrar", registrar.String(),
				"certifier", certifier.String())
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
