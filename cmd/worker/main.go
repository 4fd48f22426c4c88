package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"bloodtest-backend/internal/bootstrap"
	"bloodtest-backend/internal/queue"
	"bloodtest-backend/internal/shared/config"
	"bloodtest-backend/internal/shared/metrics"
	"bloodtest-backend/internal/shared/telemetry"
	"bloodtest-backend/internal/workerproc"
)

const defaultShutdownTimeoutSec = 30

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildWorker(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	shutdownTimeout := time.Duration(envInt("WORKER_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second
	concurrency := max(1, cfg.WorkerConcurrency)

	go app.Sweeper.Run(ctx, cfg.SweepInterval)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	log.Printf("worker started broker=%s queue=%s concurrency=%d", cfg.QueueBroker, cfg.QueueName, concurrency)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		deliveries, err := app.Consumer.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, d := range deliveries {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncJobsReceived()
			wg.Add(1)
			go func(d queue.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				handleDelivery(ctx, app, d)
			}(d)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

func handleDelivery(ctx context.Context, app *bootstrap.App, d queue.Delivery) {
	err := workerproc.HandleMessage(ctx, app.Processor, d.Body)
	if err == nil {
		ack(d, nil)
		return
	}

	meta := workerproc.ComputeMeta(d.Body)
	fields := map[string]any{
		"body_len":    meta.BodyLen,
		"body_sha256": meta.BodySHA,
		"error":       err.Error(),
	}

	if workerproc.Malformed(err) {
		// Redelivery cannot fix a bad payload; drop it.
		telemetry.Error("worker.analysis.unrecoverable", fields)
		metrics.IncJobsDropped()
		ack(d, fields)
		return
	}

	var procErr workerproc.ErrProcess
	if errors.As(err, &procErr) {
		fields["analysis_id"] = procErr.AnalysisID
		fields["task_id"] = procErr.TaskID
	}
	telemetry.Error("worker.analysis.retryable", fields)
	if d.Nack != nil {
		if nackErr := d.Nack(); nackErr != nil {
			telemetry.Error("worker.analysis.nack_error", map[string]any{"error": nackErr.Error()})
		}
	}
}

func ack(d queue.Delivery, fields map[string]any) {
	if d.Ack == nil {
		return
	}
	if err := d.Ack(); err != nil {
		if fields == nil {
			fields = map[string]any{}
		}
		fields["error"] = err.Error()
		telemetry.Error("worker.analysis.ack_error", fields)
	}
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
