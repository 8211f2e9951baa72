// Command brewd serves the development order API and brews the orders.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/unkn0wn-root/querysync"
	"github.com/unkn0wn-root/querysync/internal/backend"
	"github.com/unkn0wn-root/querysync/internal/config"
	"github.com/unkn0wn-root/querysync/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// 1. config
	cfg := config.MustLoad(*configPath)

	// 2. logger
	logs, err := logging.New(cfg.Log, os.Stdout, "brewd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logs.Sync()
	log := logs.Logger
	log.Info("starting brewd", querysync.Fields{
		"addr": cfg.Backend.Addr, "provider": cfg.Backend.Provider, "codec": cfg.Backend.Codec,
	})

	// 3. storage
	initCtx := context.Background()
	provider, err := backend.OpenProvider(initCtx, cfg.Backend)
	if err != nil {
		log.Error("failed to open provider", querysync.Fields{"err": err})
		os.Exit(1)
	}
	defer provider.Close(context.Background())

	orders, err := backend.OpenOrderStore(initCtx, cfg.Backend, provider, nil, log)
	if err != nil {
		log.Error("failed to open order store", querysync.Fields{"err": err})
		os.Exit(1)
	}
	defer orders.Close(context.Background())

	// 4. service and brewer
	svc := backend.NewService(orders, log)
	brewer := backend.NewBrewer(svc, cfg.Backend.BrewStep, nil, log)
	ctx, cancel := context.WithCancel(context.Background())
	go brewer.Run(ctx)

	// 5. http
	srv := backend.NewServer(cfg.Backend.Addr, backend.NewHandler(svc, log), cfg.API.Timeout)
	go func() {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", querysync.Fields{"err": err})
			os.Exit(1)
		}
	}()
	log.Info("listening", querysync.Fields{"addr": cfg.Backend.Addr})

	// 6. graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Backend.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", querysync.Fields{"err": err})
	}
	cancel()
	brewer.Stop()
	log.Info("brewd stopped", nil)
}
