package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/wapair/session-backend/cmd/flags"
	"github.com/wapair/session-backend/common"
	"github.com/wapair/session-backend/config"
	"github.com/wapair/session-backend/coordinator"
	"github.com/wapair/session-backend/httpserver"
	"github.com/wapair/session-backend/interfaces"
	"github.com/wapair/session-backend/metrics"
	"github.com/wapair/session-backend/protocol"
	"github.com/wapair/session-backend/store"
)

var appFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.StoreURIFlag,
	flags.GatewayURLFlag,
	flags.ConfigFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "sessiongen",
		Usage: "Serve the pairing handshake API and persist session state to a durable store",
		Flags: appFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			listenAddr := cCtx.String(flags.ListenAddrFlag.Name)
			storeURI := cCtx.String(flags.StoreURIFlag.Name)
			gatewayURL := cCtx.String(flags.GatewayURLFlag.Name)

			var fileCfg *config.Config
			if configPath := cCtx.String(flags.ConfigFlag.Name); configPath != "" {
				cfg, err := config.LoadFile(configPath)
				if err != nil {
					logger.Error("Failed to load config file", "err", err, "path", configPath)
					return err
				}
				fileCfg = cfg
				listenAddr = cfg.Server.ListenAddr
				storeURI = cfg.Store.URI
				gatewayURL = cfg.Gateway.URL
			}

			// A service without its durable store would hand out sessions it
			// cannot persist; refuse to start.
			if storeURI == "" {
				logger.Error("store-uri is required (flag, SESSION_STORE_URI, or config file)")
				return errors.New("store-uri is required")
			}
			if gatewayURL == "" {
				logger.Error("gateway-url is required (flag, SESSION_GATEWAY_URL, or config file)")
				return errors.New("gateway-url is required")
			}

			storeLoc, err := interfaces.NewStoreLocation(storeURI)
			if err != nil {
				logger.Error("Invalid store URI", "err", err)
				return err
			}

			serverCfg := flags.ConfigureServer(cCtx, logger, listenAddr)
			if fileCfg != nil {
				serverCfg.MetricsAddr = fileCfg.Server.MetricsAddr
				serverCfg.EnablePprof = serverCfg.EnablePprof || fileCfg.Server.EnablePprof
			}

			metricsSrv, err := metrics.New(common.PackageName, serverCfg.MetricsAddr)
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}
			sessionMetrics := metrics.NewSessionMetrics(metricsSrv.Registry())

			storeFactory := store.NewRecordStoreFactory(logger)
			dialer := &protocol.Dialer{
				URL: gatewayURL,
				Log: logger,
			}

			coord := coordinator.New(coordinator.Config{
				StoreFactory:  storeFactory,
				StoreLocation: storeLoc,
				Dialer:        dialer,
				Log:           logger,
				Metrics:       sessionMetrics,
			})

			handler := httpserver.NewHandler(coord, coord, logger)
			server, err := httpserver.New(serverCfg, handler, metricsSrv)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server",
				"store", storeLoc.Raw,
				"gateway", gatewayURL)
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := coord.Shutdown(ctx); err != nil {
				logger.Error("Coordinator shutdown incomplete", "err", err)
			}
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
