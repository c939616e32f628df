// Command auctiond runs the auction directory service.
//
// The daemon wires an in-memory payment ledger, one auction house, the
// directory that fronts it and the HTTP API together. Settlement records go
// to PostgreSQL when --postgres is set, otherwise to an in-memory store.
//
// # Usage
//
//	go run ./cmd/auctiond --config=auctiond.yaml
//	go run ./cmd/auctiond --addr=:8080 --postgres
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leviathan-news/auction-block/api/httpserver"
	"github.com/leviathan-news/auction-block/directory"
	"github.com/leviathan-news/auction-block/house"
	"github.com/leviathan-news/auction-block/services"
	"github.com/leviathan-news/auction-block/token"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", "", "HTTP listen address")
		usePostgres = flag.Bool("postgres", false, "Persist settlements to PostgreSQL")
		enablePprof = flag.Bool("pprof", false, "Enable pprof debugging API")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		log.Error("loading configuration", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	if err := run(cfg, *usePostgres, *enablePprof, log); err != nil {
		log.Error("auctiond failed", "err", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*services.Config, error) {
	if configPath != "" {
		return services.LoadConfig(configPath)
	}
	return services.DefaultConfig(), nil
}

func run(cfg *services.Config, usePostgres, enablePprof bool, log *slog.Logger) error {
	payment := token.NewLedger(cfg.Auction.PaymentSymbol)

	defaults, err := auctionDefaults(&cfg.Auction)
	if err != nil {
		return err
	}

	owner := token.Account(cfg.Auction.Owner)
	if owner == "" {
		owner = "deployer"
	}

	h, err := house.New(&house.Config{
		Payment:     payment,
		Account:     token.Account(cfg.Auction.EscrowAccount),
		Owner:       owner,
		FeeReceiver: token.Account(cfg.Auction.FeeReceiver),
		FeePercent:  cfg.Auction.FeePercent,
		Defaults:    defaults,
		Log:         log,
	})
	if err != nil {
		return fmt.Errorf("creating house: %w", err)
	}

	var store services.SettlementStore
	if usePostgres {
		store, err = services.NewPostgresStore(&cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
	} else {
		store = services.NewMemoryStore()
	}
	defer store.Close()

	dir, err := directory.New(&directory.Config{
		Account: "auction-directory",
		Owner:   owner,
		Payment: payment,
		Store:   store,
		Log:     log,
	})
	if err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := h.SetApprovedDirectory(owner, dir.Account()); err != nil {
		return fmt.Errorf("trusting directory: %w", err)
	}
	if err := dir.RegisterHouse(owner, "main", h); err != nil {
		return fmt.Errorf("registering house: %w", err)
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTP.Addr,
		EnablePprof:              enablePprof,
		Log:                      log,
		DrainDuration:            cfg.HTTP.DrainTimeout.Std(),
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              cfg.HTTP.ReadTimeout.Std(),
		WriteTimeout:             cfg.HTTP.WriteTimeout.Std(),
	}, httpserver.NewDirectoryHandler(dir, log))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	srv.RunInBackground()
	log.Info("auctiond running", "addr", cfg.HTTP.Addr, "postgres", usePostgres)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	srv.Shutdown()
	return nil
}

func auctionDefaults(cfg *services.AuctionConfig) (house.Params, error) {
	defaults := house.DefaultParams()
	if cfg.ReservePrice != "" {
		reserve, ok := new(big.Int).SetString(cfg.ReservePrice, 10)
		if !ok {
			return house.Params{}, fmt.Errorf("invalid reserve price %q", cfg.ReservePrice)
		}
		defaults.ReservePrice = reserve
	}
	if cfg.MinIncrementPct != 0 {
		defaults.MinIncrementPct = cfg.MinIncrementPct
	}
	if cfg.Duration != 0 {
		defaults.Duration = cfg.Duration.Std()
	}
	if cfg.TimeBuffer != 0 {
		defaults.TimeBuffer = cfg.TimeBuffer.Std()
	}
	return defaults, nil
}
