package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/basewatch/flashblocks-ingester/client/jsonrpc"
	"github.com/basewatch/flashblocks-ingester/client/wsstream"
	"github.com/basewatch/flashblocks-ingester/config"
	"github.com/basewatch/flashblocks-ingester/ingester"
	"github.com/basewatch/flashblocks-ingester/lib/history"
)

func init() {
	// always use UTC
	time.Local = time.UTC
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg, err := config.Parse()
	if err != nil {
		os.Exit(1)
	}

	if cfg.OneShot() {
		if err := runLookup(logger, cfg); err != nil {
			logger.Error("Lookup failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runStream(logger, cfg); err != nil {
		logger.Error("Stream terminated", "error", err)
		os.Exit(1)
	}
}

func runStream(logger *slog.Logger, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("Serving metrics", "addr", cfg.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer server.Close()
	}

	dialer := wsstream.NewDialer(logger, wsstream.Config{URL: cfg.Stream.WsURL})
	store := history.New(cfg.HistorySize)
	sink := ingester.Sinks{
		ingester.NewLogSink(logger),
		ingester.NewHistorySink(store),
	}

	ing := ingester.New(logger, dialer, sink, ingester.Config{
		Endpoint:         cfg.Stream.WsURL,
		BackoffMin:       cfg.Stream.BackoffMin,
		BackoffMax:       cfg.Stream.BackoffMax,
		MinBlockDuration: cfg.MinBlockDuration,
		ReportInterval:   cfg.ReportInterval,
		MaxBlocks:        cfg.Stream.MaxBlocks,
	})
	defer func() {
		if err := ing.Close(); err != nil {
			logger.Error("Failed to close ingester", "error", err)
		}
	}()

	err := ing.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

func runLookup(logger *slog.Logger, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := jsonrpc.NewClient(logger, jsonrpc.Config{URL: cfg.RPC.URL})
	if err != nil {
		return err
	}
	defer client.Close()

	switch {
	case cfg.QueryPending:
		snapshot, err := client.Snapshot(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("latest block: %d\n", snapshot.LatestBlockNumber)
		fmt.Printf("pending block: %d hash=%s txs=%d gasUsed=%s\n",
			snapshot.Pending.Number, snapshot.Pending.Hash, snapshot.Pending.TxCount, snapshot.Pending.GasUsed)
	case cfg.GetBalance != "":
		balance, err := client.Balance(ctx, cfg.GetBalance)
		if err != nil {
			return err
		}
		fmt.Printf("balance of %s: %s wei\n", cfg.GetBalance, balance)
	case cfg.GetReceipt != "":
		receipt, err := client.Receipt(ctx, cfg.GetReceipt)
		if err != nil {
			return err
		}
		fmt.Printf("receipt for %s: block=%d status=%d gasUsed=%d\n",
			receipt.TxHash, receipt.BlockNumber, receipt.Status, receipt.GasUsed)
	}
	return nil
}
