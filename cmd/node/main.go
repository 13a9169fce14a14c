package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/uhyunpark/decefi/params"
	"github.com/uhyunpark/decefi/pkg/api"
	"github.com/uhyunpark/decefi/pkg/ledger"
	"github.com/uhyunpark/decefi/pkg/util"
)

func main() {
	// .env in the current directory, overridden by the environment
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "verbose", cfg.Node.Verbose)

	// ---- Ledger ----
	store, err := ledger.NewStore(cfg.Ledger.DBPath)
	if err != nil {
		sugar.Fatalw("ledger_store_open_failed", "path", cfg.Ledger.DBPath, "err", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := ledger.NewRuntime(store, cfg.Ledger.ProgramID,
		ledger.WithLogger(logger.Named("ledger")),
		ledger.WithMetrics(ledger.NewMetrics(reg)),
		ledger.WithMaxSlotBytes(cfg.Node.MaxTxBytesPerSlot),
		ledger.WithSignatureCheck(cfg.Ledger.RequireSignatures),
	)
	if err != nil {
		sugar.Fatalw("runtime_init_failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(rt, reg, logger)
	rt.OnCommit = apiServer.BroadcastAccounts
	rt.OnReceipt = apiServer.BroadcastReceipt

	go func() {
		if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_starting",
		"program_id", cfg.Ledger.ProgramID,
		"db_path", cfg.Ledger.DBPath,
		"require_signatures", cfg.Ledger.RequireSignatures,
		"resume_slot", rt.Slot(),
		"slot_interval_ms", cfg.Node.SlotInterval.Milliseconds(),
		"max_tx_bytes_per_slot", cfg.Node.MaxTxBytesPerSlot)

	// ---- Slot loop ----
	ticker := time.NewTicker(cfg.Node.SlotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sugar.Infow("node_stopping", "slot", rt.Slot(), "pending", rt.Pending())
			return
		case <-ticker.C:
			rec, _, err := rt.ProduceSlot()
			if err != nil {
				sugar.Errorw("slot_failed", "err", err)
				continue
			}
			if rec != nil {
				apiServer.BroadcastSlot(*rec)
			}
		}
	}
}
