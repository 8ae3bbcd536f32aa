package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/ignite/churn-radar/internal/agent"
	"github.com/ignite/churn-radar/internal/api"
	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/datanorm"
	"github.com/ignite/churn-radar/internal/pipeline"
	"github.com/ignite/churn-radar/internal/pkg/logger"
	"github.com/ignite/churn-radar/internal/repository/postgres"
	"github.com/ignite/churn-radar/internal/service/runs"
	"github.com/ignite/churn-radar/internal/storage"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  Churn Radar API Server (cmd/server/main.go)              ║")
	log.Println("║  Cohort scoring, ROI simulation and outreach briefs       ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactPII == nil || *cfg.Logging.RedactPII)

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	p, err := pipeline.New(cfg)
	if err != nil {
		log.Fatalf("Invalid analysis configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run history: PostgreSQL when configured, memory otherwise
	var db *sql.DB
	runRepo := runs.Repository(runs.NewMemoryRepository())
	if cfg.Database.Enabled && cfg.Database.URL != "" {
		db, err = openPostgres(ctx, cfg.Database.URL)
		if err != nil {
			log.Printf("Warning: PostgreSQL unavailable, run history kept in memory: %v", err)
		} else {
			defer db.Close()
			repo := postgres.NewRunRepo(db)
			if err := repo.EnsureSchema(ctx); err != nil {
				log.Fatalf("Failed to prepare run history schema: %v", err)
			}
			runRepo = repo
			log.Printf("PostgreSQL connected (%s), run history persisted", extractHost(cfg.Database.URL))
		}
	}

	// Result cache: Redis when configured
	var redisClient *redis.Client
	results := storage.ResultStore(storage.NewMemoryResultStore())
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			log.Printf("Warning: Redis unavailable at %s, results cached in memory: %v", cfg.Redis.Addr, err)
			redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
			results = storage.NewRedisResultStore(redisClient, cfg.Redis.ResultTTL())
			log.Printf("Redis connected at %s (result TTL %s)", cfg.Redis.Addr, cfg.Redis.ResultTTL())
		}
	}

	// S3 for dataset URIs and the health check
	var s3Client *s3.Client
	if cfg.Storage.Type == "aws" {
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Storage)
		if err != nil {
			log.Printf("Warning: AWS config unavailable, s3:// datasets disabled: %v", err)
		} else {
			s3Client = s3.NewFromConfig(awsCfg)
			log.Printf("S3 enabled (bucket %s, region %s)", cfg.Storage.S3Bucket, cfg.Storage.AWSRegion)
		}
	}

	// sql:// datasets
	var datasetDB *sql.DB
	if cfg.Dataset.DSN != "" && cfg.Dataset.Query != "" {
		driver := cfg.Dataset.Driver
		if driver == "" {
			driver = "postgres"
		}
		datasetDB, err = sql.Open(driver, cfg.Dataset.DSN)
		if err != nil {
			log.Printf("Warning: %s dataset source unavailable: %v", driver, err)
			datasetDB = nil
		} else {
			defer datasetDB.Close()
			log.Printf("Dataset source configured (%s)", driver)
		}
	}

	var loader api.DatasetLoader
	if s3Client != nil || datasetDB != nil {
		var getter datanorm.ObjectGetter
		if s3Client != nil {
			getter = s3Client
		}
		loader = datanorm.NewLoader(getter, datasetDB, cfg.Dataset.Query)
	}

	renderer, err := agent.NewRenderer(cfg.Copy.TemplatePath)
	if err != nil {
		log.Fatalf("Failed to load brief template: %v", err)
	}
	var copywriter agent.Copywriter = agent.NewTemplateCopywriter()
	if cfg.Copy.Enabled {
		bedrock, err := agent.NewBedrockCopywriterFromConfig(ctx, cfg.Copy, renderer)
		if err != nil {
			log.Printf("Warning: Bedrock unavailable, using template copy: %v", err)
		} else {
			copywriter = &agent.FallbackCopywriter{Primary: bedrock, Fallback: copywriter}
			log.Printf("Bedrock copywriter enabled (model %s)", cfg.Copy.ModelID)
		}
	}

	handlers := api.NewHandlers(api.Deps{
		Pipeline:   p,
		Loader:     loader,
		Results:    results,
		Runs:       runs.NewService(runRepo),
		Locks:      api.SharedLocks(redisClient, db, 2*time.Minute),
		Renderer:   renderer,
		Copywriter: copywriter,
	})

	var bucketHeader api.BucketHeader
	if s3Client != nil {
		bucketHeader = s3Client
	}
	health := api.NewHealthChecker(db, redisClient, bucketHeader, cfg.Storage.S3Bucket)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           api.SetupRoutes(handlers, health, nil),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

func openPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
