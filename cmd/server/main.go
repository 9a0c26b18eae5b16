package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/margex/gotrade/internal/audit"
	"github.com/margex/gotrade/internal/engine"
	"github.com/margex/gotrade/internal/ledger"
	"github.com/margex/gotrade/internal/oracle"
	"github.com/margex/gotrade/internal/position"
	"github.com/margex/gotrade/internal/recorder"
	"github.com/margex/gotrade/internal/server"
	"github.com/margex/gotrade/internal/settle"
	"github.com/margex/gotrade/internal/storage"
	"github.com/margex/gotrade/pkg/config"
	"github.com/margex/gotrade/pkg/logger"
	"github.com/margex/gotrade/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Component("main")

	store, err := storage.Open(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	sink, err := audit.OpenBadgerSink(cfg.Storage.BadgerDir)
	if err != nil {
		log.Fatalf("open audit sink: %v", err)
	}
	defer sink.Close()

	openingBalance, err := decimal.NewFromString(cfg.Engine.OpeningBalance)
	if err != nil {
		log.Fatalf("bad opening_balance %q: %v", cfg.Engine.OpeningBalance, err)
	}
	feeRate, err := decimal.NewFromString(cfg.Engine.FeeRate)
	if err != nil {
		log.Fatalf("bad fee_rate %q: %v", cfg.Engine.FeeRate, err)
	}
	maxSlippage, err := decimal.NewFromString(cfg.Engine.MaxSlippagePercent)
	if err != nil {
		log.Fatalf("bad max_slippage_percent %q: %v", cfg.Engine.MaxSlippagePercent, err)
	}

	book := oracle.NewBook(cfg.Engine.QuoteMaxAge)

	wallets := ledger.NewWalletLedger(logger.Component("ledger"))
	orders := engine.New(engine.Config{MaxSlippagePercent: maxSlippage}, book, wallets, logger.Component("engine"))
	positions := position.NewManager(logger.Component("positions"))
	trades := recorder.New(recorder.FeeSchedule{Rate: feeRate})

	coord := settle.New(settle.Config{
		OpeningBalance: openingBalance,
		Retry: settle.RetryPolicy{
			Attempts: cfg.Engine.RetryAttempts,
			Backoff:  cfg.Engine.RetryBackoff,
		},
	}, wallets, orders, positions, trades, store, sink, logger.Component("settle"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coord.Rehydrate(ctx, store); err != nil {
		log.Fatalf("rehydrate: %v", err)
	}

	// Every committed tick drives the mark-to-market sweep.
	book.OnTick(func(q oracle.Quote) {
		coord.MarkToMarket(q.Symbol, q.Last)
	})

	switch cfg.Oracle.Mode {
	case "ws":
		feed := oracle.NewWSFeed(cfg.Oracle.Endpoint, book, logger.Component("oracle.ws"))
		go feed.Run(ctx)
	case "rest":
		feed := oracle.NewRESTFeed(cfg.Oracle.Endpoint, cfg.Oracle.Symbols, cfg.Oracle.Interval, book, logger.Component("oracle.rest"))
		go feed.Run(ctx)
	default:
		seeds := make(map[string]float64, len(cfg.Oracle.Symbols))
		for _, sym := range cfg.Oracle.Symbols {
			seeds[sym] = 100.0
		}
		feed := oracle.NewSimFeed(seeds, cfg.Oracle.Interval, book, logger.Component("oracle.sim"))
		go feed.Run(ctx)
	}

	limiter := ratelimit.NewPerUser(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	srv := server.New(coord, sink, limiter, logger.Component("http"))

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("listening on %s (oracle=%s)", cfg.Server.Addr, cfg.Oracle.Mode)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	fmt.Println("server stopped")
}
