/**
 * ZakPOS OCR Worker - Main Entry Point
 *
 * Go worker turning product, receipt and invoice photos into
 * structured OCR results for the POS backend.
 *
 * Architecture:
 * - Asynq consumer for Redis-backed job queue
 * - TrOCR primary recognition with Tesseract fallback
 * - Barcode detection on product images
 * - Redis result/feature caching, PostgreSQL job tracking
 * - Prometheus metrics and health endpoint over HTTP
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zakpos/ocr-worker/internal/cache"
	"github.com/zakpos/ocr-worker/internal/config"
	"github.com/zakpos/ocr-worker/internal/logging"
	"github.com/zakpos/ocr-worker/internal/processor"
	"github.com/zakpos/ocr-worker/internal/queue"
	"github.com/zakpos/ocr-worker/internal/storage"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger("worker")

	log.Printf("ZakPOS OCR Worker starting...")
	log.Printf("Configuration loaded: Redis=%s, TrOCR=%s, Workers=%d",
		cfg.RedisURL, cfg.TrOCRURL, cfg.WorkerConcurrency)

	// Optional PostgreSQL job tracking
	var jobStore *storage.PostgresClient
	if cfg.DatabaseURL != "" {
		log.Printf("Connecting to PostgreSQL...")
		jobStore, err = storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: PostgreSQL unavailable, job tracking disabled: %v", err)
			jobStore = nil
		} else {
			defer jobStore.Close()
			log.Printf("PostgreSQL job store initialized")
		}
	} else {
		log.Printf("DATABASE_URL not set, job tracking disabled")
	}

	// Result and feature cache
	var resultCache *cache.Store
	if cfg.EnableModelCaching {
		redisClient, err := cache.Connect(cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: Redis cache unavailable, caching disabled: %v", err)
		} else {
			resultCache = cache.New(redisClient,
				time.Duration(cfg.CacheTTLSeconds)*time.Second,
				time.Duration(cfg.FeatureCacheTTLSeconds)*time.Second,
				logging.NewLogger("cache"))
			defer resultCache.Close()
			log.Printf("Result cache initialized (TTL=%ds, feature TTL=%ds)",
				cfg.CacheTTLSeconds, cfg.FeatureCacheTTLSeconds)
		}
	}

	// Recognition engine: TrOCR primary, Tesseract fallback
	log.Printf("Initializing recognition engine...")
	primary := processor.NewTrOCRClient(cfg.TrOCRURL, cfg.PrimaryModel)
	fallback := processor.NewTesseractOCR(cfg.FallbackModel)
	engine := processor.NewEngine(primary, fallback, logging.NewLogger("engine"))

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := engine.Load(loadCtx); err != nil {
		log.Printf("Warning: recognition engine not fully loaded: %v", err)
	}
	loadCancel()
	log.Printf("Recognition engine initialized (primary=%s, fallback=%s, ready=%v)",
		primary.ModelID(), fallback.ModelID(), engine.IsReady())

	// Processing pipeline
	var detector processor.Detector
	if cfg.EnableBarcodeDetection {
		detector = processor.NewBarcodeDetector(logging.NewLogger("barcode"))
	}

	var pipelineCache processor.ResultCache
	if resultCache != nil {
		pipelineCache = resultCache
	}

	pipeline, err := processor.NewPipeline(engine, detector, pipelineCache, processor.PipelineConfig{
		MaxImageBytes:  cfg.MaxImageSizeBytes(),
		MaxDimensionPx: cfg.MaxDimensionPx,
		EnableBarcodes: cfg.EnableBarcodeDetection,
		EnableCaching:  cfg.EnableModelCaching && resultCache != nil,
		Logger:         logging.NewLogger("pipeline"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize processing pipeline: %v", err)
	}
	log.Printf("Processing pipeline initialized")

	// Queue consumer
	log.Printf("Connecting to Redis queue...")
	var consumerStore queue.JobStore
	if jobStore != nil {
		consumerStore = jobStore
	}
	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		ProcessingTimeout: cfg.ProcessingTimeout,
		Pipeline:          pipeline,
		Store:             consumerStore,
		Logger:            logging.NewLogger("queue"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	if err := consumer.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}
	log.Printf("Queue consumer started with concurrency=%d", cfg.WorkerConcurrency)

	// Metrics and health HTTP server
	httpServer := newHTTPServer(cfg.Port, engine, primary.ModelID(), fallback.ModelID())
	go func() {
		log.Printf("HTTP server listening on :%d (/metrics, /health)", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Print startup summary
	log.Printf("===========================================")
	log.Printf("ZakPOS OCR Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s", cfg.QueueName)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Primary Model: %s", primary.ModelID())
	log.Printf("Fallback Model: %s", fallback.ModelID())
	log.Printf("Barcode Detection: %v", cfg.EnableBarcodeDetection)
	log.Printf("Result Caching: %v", resultCache != nil)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	} else {
		log.Printf("Queue consumer stopped successfully")
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}

	log.Printf("Shutdown complete")
}

// newHTTPServer exposes Prometheus metrics and a readiness probe.
func newHTTPServer(port int, engine *processor.Engine, primaryModel, fallbackModel string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ready := engine.IsReady()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": map[bool]string{true: "healthy", false: "degraded"}[ready],
			"ready":  ready,
			"models": map[string]bool{
				primaryModel:  engine.IsBackendLoaded(primaryModel),
				fallbackModel: engine.IsBackendLoaded(fallbackModel),
			},
		})
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
