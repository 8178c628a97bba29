package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chadiek/warm-transfer/internal/config"
	"github.com/chadiek/warm-transfer/internal/directory"
	"github.com/chadiek/warm-transfer/internal/httpserver"
	"github.com/chadiek/warm-transfer/internal/llm"
	"github.com/chadiek/warm-transfer/internal/media"
	"github.com/chadiek/warm-transfer/internal/notify"
	"github.com/chadiek/warm-transfer/internal/room"
	"github.com/chadiek/warm-transfer/internal/store"
	"github.com/chadiek/warm-transfer/internal/telephony"
	"github.com/chadiek/warm-transfer/internal/transcript"
	"github.com/chadiek/warm-transfer/internal/transfer"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	var st transfer.Store
	if cfg.RedisAddr != "" {
		st = store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
		log.Printf("using Redis state at %s", cfg.RedisAddr)
	} else {
		st = transfer.NewMemoryStore()
		log.Println("using in-memory state; transfers will not survive restarts")
	}

	minter := room.NewTokenMinter(cfg.MediaAPIKey, cfg.MediaAPISecret)
	mediaClient := media.NewClient(cfg.MediaURL, minter)

	transcripts := transcript.NewAggregator()
	summarizer := llm.NewSummarizer(llm.NewClient(cfg.LLMAPIKey, cfg.LLMModelID, cfg.LLMBaseURL), cfg.SummaryTimeout)

	dir, err := directory.Load(cfg.DirectoryPath)
	if err != nil {
		log.Printf("directory unavailable (%v); transfers will use default identities", err)
		dir = directory.Empty()
	}

	hub := notify.NewHub()

	phones := telephony.New(telephony.Config{
		AccountSID:     cfg.TwilioAccountSID,
		AuthToken:      cfg.TwilioAuthToken,
		FromNumber:     cfg.TwilioFromNumber,
		WebhookBaseURL: cfg.WebhookBaseURL,
	})

	opts := transfer.Options{
		Store:           st,
		Minter:          minter,
		Media:           mediaClient,
		Transcripts:     transcripts,
		Summaries:       summarizer,
		Notifier:        hub,
		Directory:       dir,
		TransferTimeout: cfg.TransferTimeout,
		SweepInterval:   cfg.SweepInterval,
	}
	if phones.Enabled() {
		opts.Phones = phones
	} else {
		log.Println("Twilio credentials missing; phone bridging disabled")
	}
	orch := transfer.NewOrchestrator(opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)

	srv := httpserver.New(httpserver.Deps{
		Orchestrator: orch,
		Transcripts:  transcripts,
		Directory:    dir,
		Hub:          hub,
		MediaURL:     cfg.MediaURL,
		STTAPIKey:    cfg.STTAPIKey,
	})
	e := srv.Router()
	if phones.Enabled() {
		phones.RegisterHandlers(e)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
