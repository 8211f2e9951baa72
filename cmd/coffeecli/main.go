// Command coffeecli is an interactive storefront for the order API.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/unkn0wn-root/querysync"
	asynchook "github.com/unkn0wn-root/querysync/hooks/async"
	"github.com/unkn0wn-root/querysync/internal/coffee"
	"github.com/unkn0wn-root/querysync/internal/config"
	"github.com/unkn0wn-root/querysync/internal/logging"
	"github.com/unkn0wn-root/querysync/internal/storefront"
	"github.com/unkn0wn-root/querysync/sloghooks"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	// logs go to stderr so they do not interleave with the prompt on stdout
	logs, err := logging.New(cfg.Log, os.Stderr, "coffeecli")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logs.Sync()
	log := logs.Logger

	var hooks querysync.Hooks = sloghooks.New(logs.Slog, sloghooks.Options{
		FetchEvery:  cfg.Sync.HookSampleEvery,
		DedupeEvery: cfg.Sync.HookSampleEvery,
	})
	if cfg.Sync.HookQueue > 0 {
		ah := asynchook.New(hooks, 1, cfg.Sync.HookQueue)
		defer ah.Close()
		hooks = ah
	}

	api, err := coffee.NewHTTPClient(coffee.ClientOptions{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		RetryMaxTries: cfg.API.RetryMaxTries,
		Logger:        log,
	})
	if err != nil {
		log.Error("failed to create api client", querysync.Fields{"err": err})
		os.Exit(1)
	}

	focus := querysync.NewFocusManager()
	client := querysync.New(querysync.Options{
		Focus:        focus,
		Logger:       log,
		Hooks:        hooks,
		GenRetention: cfg.Sync.GenRetention,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(storefront.New(client, api, storefront.PolicyFromConfig(cfg.Sync)), focus, bufio.NewReader(os.Stdin), os.Stdout)
	if err := a.run(ctx); err != nil {
		log.Error("storefront stopped", querysync.Fields{"err": err})
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	defer cancel()
	if err := client.Close(closeCtx); err != nil {
		log.Warn("client close", querysync.Fields{"err": err})
	}
}
