package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-notify-api/internal/config"
	"github.com/go-notify-api/internal/delivery"
	"github.com/go-notify-api/internal/infrastructure/dynamo"
	"github.com/go-notify-api/internal/infrastructure/smtp"
	"github.com/go-notify-api/internal/queue"
	"github.com/go-notify-api/internal/schedule"
	transporthttp "github.com/go-notify-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	templateRepo := dynamo.NewTemplateRepo(dynamoClient, cfg.DynamoTables.Templates)
	notificationRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications, cfg.DynamoTables.Dedupe)
	logRepo := dynamo.NewAttemptLogRepo(dynamoClient, cfg.DynamoTables.Logs)

	mailer := smtp.NewMailer(cfg)

	// Delivery pipeline: queue feeding a worker pool, a dispatcher for new
	// records and a sweeper re-driving anything the in-process timers missed.
	q := queue.New(cfg.QueueBuffer)
	worker := delivery.NewWorker(notificationRepo, templateRepo, logRepo, mailer, q, delivery.WorkerConfig{
		MaxAttempts:    cfg.RetryMaxAttempts,
		RetryBackoff:   cfg.RetryBackoff,
		SendTimeout:    cfg.SendTimeout,
		ICSDurationMin: cfg.ICSDurationMin,
	})
	dispatcher := delivery.NewDispatcher(q)
	sweeper := delivery.NewSweeper(notificationRepo, q, cfg.StuckQueuedAfter)

	runCtx, stopWorkers := context.WithCancel(context.Background())
	pool := delivery.NewPool(q.Jobs(), worker, cfg.WorkerCount)
	go pool.Run(runCtx)

	// Catch up on anything left over from a previous process before the cron
	// cadence takes over.
	sweeper.Sweep(runCtx)
	cronRunner, err := sweeper.Start(runCtx, cfg.SweepInterval)
	if err != nil {
		log.Fatalf("start sweeper: %v", err)
	}

	resolver := schedule.NewResolver(schedule.ResolverConfig{
		DefaultTimezone:   cfg.DefaultTimezone,
		DefaultSendHour:   cfg.DefaultSendHour,
		DefaultSendMinute: cfg.DefaultSendMinute,
	})

	deps := &transporthttp.Deps{
		TemplateRepo:     templateRepo,
		NotificationRepo: notificationRepo,
		LogRepo:          logRepo,
		Resolver:         resolver,
		Dispatcher:       dispatcher,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	<-cronRunner.Stop().Done()
	stopWorkers()
	q.Close()
	log.Println("Server stopped")
}
