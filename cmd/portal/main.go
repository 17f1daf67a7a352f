package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vereinsportal/portal/config"
	"github.com/vereinsportal/portal/internal/api"
	"github.com/vereinsportal/portal/internal/bot"
	"github.com/vereinsportal/portal/internal/cache"
	"github.com/vereinsportal/portal/internal/clients/caldav"
	"github.com/vereinsportal/portal/internal/scheduler"
	"github.com/vereinsportal/portal/internal/secret"
	"github.com/vereinsportal/portal/internal/service"
	"github.com/vereinsportal/portal/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	addUser := flag.String("adduser", "", "create a user as name:password:role and exit")
	setRole := flag.String("setrole", "", "change a user's role as name:role and exit")
	delUser := flag.String("deluser", "", "delete a user by name and exit")
	listUsers := flag.Bool("listusers", false, "list users and exit")
	genKey := flag.Bool("genkey", false, "print a new SECRET_KEY and exit")
	flag.Parse()

	if *genKey {
		key, err := secret.GenerateKey()
		if err != nil {
			log.Fatalf("Failed to generate key: %v", err)
		}
		fmt.Println(key)
		return
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Init storage
	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	users := userFlags{add: *addUser, setRole: *setRole, del: *delUser, list: *listUsers}
	if users.any() {
		if err := users.run(store, os.Stdout); err != nil {
			log.Fatalf("User command failed: %v", err)
		}
		return
	}

	sealer, err := secret.NewSealer(cfg.SecretKey)
	if err != nil {
		log.Fatalf("Failed to init secrets: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	// Init services
	newTransport := func(username, password string) service.Transport {
		return caldav.NewClient(username, password, caldav.Options{
			Timeout: cfg.CalDAVTimeout,
			Logger:  logger.With("component", "caldav"),
		})
	}

	eventCache := cache.New(cfg.CacheTTL)
	log.Printf("Event cache TTL %s, window -%s/+%s", eventCache.TTL(), cfg.LookBack, cfg.LookAhead)

	calendarSvc := service.NewCalendarService(store, sealer, newTransport, eventCache, service.CalendarOptions{
		Timezone:  cfg.Timezone,
		LookBack:  cfg.LookBack,
		LookAhead: cfg.LookAhead,
		Workers:   cfg.FetchWorkers,
		Logger:    logger.With("component", "calendar"),
	})

	mux := http.NewServeMux()
	mux.Handle("/", api.NewServer(calendarSvc, store))

	// Init scheduler
	sched := scheduler.New(cfg, calendarSvc, store)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telegram is optional
	if cfg.TelegramEnabled() {
		tgBot, err := bot.New(cfg, calendarSvc)
		if err != nil {
			log.Fatalf("Failed to init bot: %v", err)
		}
		if cfg.WebhookURL != "" {
			if err := tgBot.SetupWebhook(); err != nil {
				log.Fatalf("Failed to setup webhook: %v", err)
			}
			mux.HandleFunc("/bot", tgBot.WebhookHandler)
		}
		sched.SetSender(tgBot)

		go func() {
			if err := tgBot.Start(ctx); err != nil {
				log.Printf("Bot error: %v", err)
			}
		}()
	}

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting HTTP server on :%s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Println("Portal started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Graceful shutdown
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping server: %v", err)
	}

	log.Println("Portal stopped")
}
