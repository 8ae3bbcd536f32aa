package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/schollz/progressbar/v3"
	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/ignite/churn-radar/internal/agent"
	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/datanorm"
	"github.com/ignite/churn-radar/internal/pipeline"
	"github.com/ignite/churn-radar/internal/pkg/logger"
	"github.com/ignite/churn-radar/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "path to config file")
		dataset    = flag.String("dataset", "", "customer dataset: local CSV path, s3://bucket/key.csv or sql://")
		out        = flag.String("out", "", "export destination: directory or s3://bucket/prefix (default: storage config)")
		seed       = flag.Uint64("seed", 0, "micro-cohort seed (overrides config)")
		briefs     = flag.Bool("briefs", false, "write a copy brief per cohort next to the export")
		draft      = flag.Bool("draft", false, "with -briefs, also draft outreach copy")
		noExport   = flag.Bool("no-export", false, "print the report only")
	)
	flag.Parse()

	if *dataset == "" {
		fmt.Fprintln(os.Stderr, "usage: churnradar -dataset customers.csv [-config config.yaml] [-out dir|s3://bucket/prefix]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			cfg.MicroCohorts.Seed = *seed
		}
	})
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactPII == nil || *cfg.Logging.RedactPII)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, options{
		dataset:  *dataset,
		out:      *out,
		briefs:   *briefs,
		draft:    *draft,
		noExport: *noExport,
	}); err != nil {
		log.Fatalf("churnradar: %v", err)
	}
}

type options struct {
	dataset  string
	out      string
	briefs   bool
	draft    bool
	noExport bool
}

// loadConfig reads the config file, falling back to built-in defaults when
// the default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && path == "config/config.yaml" {
		log.Printf("[config] %s not found, using defaults", path)
		return config.Default(), nil
	}
	return nil, err
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	loader, closeLoader, err := newLoader(ctx, cfg, opts.dataset)
	if err != nil {
		return err
	}
	defer closeLoader()

	started := time.Now()
	table, err := loader.Load(ctx, opts.dataset)
	if err != nil {
		return fmt.Errorf("loading %s: %w", opts.dataset, err)
	}
	log.Printf("Loaded %d rows from %s", table.Len(), opts.dataset)

	bar := progressbar.NewOptions(len(pipeline.Stages()),
		progressbar.OptionSetDescription("analyzing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	p.OnStage = func(ev pipeline.StageEvent) {
		bar.Describe(string(ev.Stage))
		_ = bar.Add(1)
	}

	res, err := p.Run(ctx, table)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	printReport(os.Stdout, res)
	log.Printf("Run %s finished in %s", res.RunID, time.Since(started).Round(time.Millisecond))

	if opts.noExport {
		return nil
	}

	sink, err := storage.ParseDestination(ctx, opts.out, cfg.Storage)
	if err != nil {
		return fmt.Errorf("export destination: %w", err)
	}
	manifest, err := storage.NewExporter(sink).Export(ctx, res)
	if err != nil {
		return err
	}
	log.Printf("Exported %d files to %s", len(manifest.Files), sink.Location(""))

	if opts.briefs {
		return writeBriefs(ctx, cfg, sink, res, opts.draft)
	}
	return nil
}

// newLoader wires the dataset backends the URI needs.
func newLoader(ctx context.Context, cfg *config.Config, uri string) (*datanorm.Loader, func(), error) {
	var (
		objects datanorm.ObjectGetter
		db      *sql.DB
	)
	closer := func() {}

	switch {
	case strings.HasPrefix(uri, "s3://"):
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Storage)
		if err != nil {
			return nil, closer, err
		}
		objects = s3.NewFromConfig(awsCfg)
	case strings.HasPrefix(uri, "sql://"):
		var err error
		db, err = openDataset(ctx, cfg.Dataset)
		if err != nil {
			return nil, closer, err
		}
		closer = func() { db.Close() }
	}
	return datanorm.NewLoader(objects, db, cfg.Dataset.Query), closer, nil
}

// openDataset connects to the SQL dataset source. Driver is "postgres" or
// "snowflake".
func openDataset(ctx context.Context, ds config.DatasetConfig) (*sql.DB, error) {
	if ds.DSN == "" || ds.Query == "" {
		return nil, fmt.Errorf("sql:// dataset needs dataset.dsn and dataset.query")
	}
	driver := ds.Driver
	if driver == "" {
		driver = "postgres"
	}
	db, err := sql.Open(driver, ds.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s dataset: %w", driver, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s dataset: %w", driver, err)
	}
	log.Printf("Connected to %s dataset source", driver)
	return db, nil
}

// writeBriefs renders one brief per cohort into briefs/, plus drafted copy
// when requested.
func writeBriefs(ctx context.Context, cfg *config.Config, sink storage.Sink, res *pipeline.Result, draft bool) error {
	renderer, err := agent.NewRenderer(cfg.Copy.TemplatePath)
	if err != nil {
		return err
	}

	var writer agent.Copywriter
	if draft {
		writer = agent.NewTemplateCopywriter()
		if cfg.Copy.Enabled {
			bedrock, err := agent.NewBedrockCopywriterFromConfig(ctx, cfg.Copy, renderer)
			if err != nil {
				log.Printf("Warning: Bedrock unavailable, using template copy: %v", err)
			} else {
				writer = &agent.FallbackCopywriter{Primary: bedrock, Fallback: writer}
			}
		}
	}

	for _, b := range agent.BriefsFor(res) {
		if b.Size == 0 {
			continue
		}
		base := "briefs/" + strings.TrimSuffix(storage.CohortFileName(b.Cohort), ".csv")
		prompt, err := renderer.Render(b)
		if err != nil {
			return err
		}
		if err := sink.Put(ctx, base+".md", []byte(prompt), "text/markdown"); err != nil {
			return fmt.Errorf("writing brief for %s: %w", b.Cohort, err)
		}
		if writer == nil {
			continue
		}
		d, err := writer.Draft(ctx, b)
		if err != nil {
			log.Printf("Warning: no copy for %s: %v", b.Cohort, err)
			continue
		}
		body, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		if err := sink.Put(ctx, base+".copy.json", body, "application/json"); err != nil {
			return fmt.Errorf("writing copy for %s: %w", b.Cohort, err)
		}
	}
	log.Printf("Briefs written to %s", sink.Location("briefs/"))
	return nil
}
