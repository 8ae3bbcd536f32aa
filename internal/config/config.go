package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/churn-radar/internal/domain"
)

// Config holds all configuration for the application. A single Config is
// passed explicitly to every pipeline stage; no stage reads global state.
type Config struct {
	Server       ServerConfig      `yaml:"server" json:"server"`
	Logging      LoggingConfig     `yaml:"logging" json:"logging"`
	Ingest       IngestConfig      `yaml:"ingest" json:"ingest"`
	Features     FeatureConfig     `yaml:"features" json:"features"`
	Scoring      ScoringConfig     `yaml:"scoring" json:"scoring"`
	Cohorts      CohortConfig      `yaml:"cohorts" json:"cohorts"`
	MicroCohorts MicroCohortConfig `yaml:"micro_cohorts" json:"micro_cohorts"`
	ROI          ROIConfig         `yaml:"roi" json:"roi"`
	Storage      StorageConfig     `yaml:"storage" json:"-"`
	Redis        RedisConfig       `yaml:"redis" json:"-"`
	Database     DatabaseConfig    `yaml:"database" json:"-"`
	Dataset      DatasetConfig     `yaml:"dataset" json:"-"`
	Copy         CopyConfig        `yaml:"copy" json:"-"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port" json:"port"`
	Host string `yaml:"host" json:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"` // debug, info, warn, error
	RedactPII *bool  `yaml:"redact_pii" json:"redact_pii,omitempty"`
}

// IngestConfig tunes column canonicalization.
type IngestConfig struct {
	ExtraAliases  map[string]string `yaml:"extra_aliases" json:"extra_aliases,omitempty"`   // raw header -> canonical column
	MissingTokens []string          `yaml:"missing_tokens" json:"missing_tokens,omitempty"` // cell values treated as null
}

// FeatureConfig holds the derived-column weights.
type FeatureConfig struct {
	DeviceWeight    float64 `yaml:"device_weight" json:"device_weight"`       // Engagement = hours + w*devices
	ComplaintWeight float64 `yaml:"complaint_weight" json:"complaint_weight"` // SatisfactionAdjusted = sat - w*complaints
	AtRiskFromDays  float64 `yaml:"at_risk_from_days" json:"at_risk_from_days"`
	ChurnedFromDays float64 `yaml:"churned_from_days" json:"churned_from_days"`
}

// ScoringConfig holds the resurrection score weights and the active filter.
type ScoringConfig struct {
	InactiveAfterDays float64      `yaml:"inactive_after_days" json:"inactive_after_days"` // recency strictly above marks a customer active
	Weights           ScoreWeights `yaml:"weights" json:"weights"`
}

// ScoreWeights must be non-negative and sum to 1.
type ScoreWeights struct {
	Engagement float64 `yaml:"engagement" json:"engagement"`
	Monetary   float64 `yaml:"monetary" json:"monetary"`
	Recency    float64 `yaml:"recency" json:"recency"`
}

// Sum returns the total weight.
func (w ScoreWeights) Sum() float64 {
	return w.Engagement + w.Monetary + w.Recency
}

// Threshold is either an absolute value or a percentile (0-1] resolved
// against the active population. Percentile wins when set.
type Threshold struct {
	Value      float64 `yaml:"value" json:"value,omitempty"`
	Percentile float64 `yaml:"percentile" json:"percentile,omitempty"`
}

// UnmarshalYAML replaces the whole threshold: value and percentile are
// alternatives, so a configured threshold never inherits the other half.
func (t *Threshold) UnmarshalYAML(node *yaml.Node) error {
	type plain Threshold
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = Threshold(p)
	return nil
}

// IsPercentile reports whether the threshold is population-relative.
func (t Threshold) IsPercentile() bool { return t.Percentile > 0 }

// Window is a range of days since last order: [Min, Max], or [Min, Max)
// when MaxExclusive is set.
type Window struct {
	Min          float64 `yaml:"min" json:"min"`
	Max          float64 `yaml:"max" json:"max"`
	MaxExclusive bool    `yaml:"max_exclusive" json:"max_exclusive,omitempty"`
}

// UnmarshalYAML replaces the whole window.
func (w *Window) UnmarshalYAML(node *yaml.Node) error {
	type plain Window
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*w = Window(p)
	return nil
}

// Contains reports whether v lies inside the window.
func (w Window) Contains(v float64) bool {
	if w.MaxExclusive {
		return v >= w.Min && v < w.Max
	}
	return v >= w.Min && v <= w.Max
}

// CohortConfig holds the primary cohort rule thresholds.
type CohortConfig struct {
	PaymentSensitive PaymentSensitiveRule `yaml:"payment_sensitive" json:"payment_sensitive"`
	HighTenure       HighTenureRule       `yaml:"high_tenure" json:"high_tenure"`
	PremiumLapsed    PremiumLapsedRule    `yaml:"premium_lapsed" json:"premium_lapsed"`
	AtRiskHighValue  AtRiskHighValueRule  `yaml:"at_risk_high_value" json:"at_risk_high_value"`
}

// PaymentSensitiveRule: heavy coupon or cashback use, lapsed within Recency.
type PaymentSensitiveRule struct {
	Coupon   Threshold `yaml:"coupon" json:"coupon"`
	Cashback Threshold `yaml:"cashback" json:"cashback"`
	Recency  Window    `yaml:"recency" json:"recency"`
}

// HighTenureRule: long-tenured customers who recently stopped ordering.
type HighTenureRule struct {
	MinTenure Threshold `yaml:"min_tenure" json:"min_tenure"`
	Recency   Window    `yaml:"recency" json:"recency"`
}

// PremiumLapsedRule: top engagement, recently lapsed.
type PremiumLapsedRule struct {
	Engagement Threshold `yaml:"engagement" json:"engagement"`
	Recency    Window    `yaml:"recency" json:"recency"`
}

// AtRiskHighValueRule: high monetary value with the churn-risk flag set.
type AtRiskHighValueRule struct {
	MinValue Threshold `yaml:"min_value" json:"min_value"`
}

// MicroCohortConfig holds the k-means settings.
type MicroCohortConfig struct {
	Clusters      int    `yaml:"clusters" json:"clusters"`
	Seed          uint64 `yaml:"seed" json:"seed"`
	Restarts      int    `yaml:"restarts" json:"restarts"`
	MaxIterations int    `yaml:"max_iterations" json:"max_iterations"`
}

// ROIConfig holds the business assumptions and the readiness gate.
type ROIConfig struct {
	Defaults     domain.Assumptions            `yaml:"defaults" json:"defaults"`
	Cohorts      map[string]domain.Assumptions `yaml:"cohorts" json:"cohorts,omitempty"` // per-cohort overrides
	Readiness    ReadinessConfig               `yaml:"readiness" json:"readiness"`
	IncludeMicro bool                          `yaml:"include_micro" json:"include_micro"`
}

// AssumptionsFor returns the override for a cohort, or the defaults.
func (c ROIConfig) AssumptionsFor(cohort string) domain.Assumptions {
	if a, ok := c.Cohorts[cohort]; ok {
		return a
	}
	return c.Defaults
}

// ReadinessConfig gates which cohorts enter the aggregate waterfall.
type ReadinessConfig struct {
	MinSize      int     `yaml:"min_size" json:"min_size"`
	MinMeanScore float64 `yaml:"min_mean_score" json:"min_mean_score"`
}

// StorageConfig holds artifact export configuration
type StorageConfig struct {
	Type       string `yaml:"type"` // "local" or "aws"
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	// Static keys, e.g. for S3-compatible stores. Empty uses the profile or
	// the default chain.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds the result cache and lock backend settings.
type RedisConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	ResultTTLHours int    `yaml:"result_ttl_hours"`
}

// ResultTTL returns the cache TTL as a duration
func (c RedisConfig) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLHours) * time.Hour
}

// DatabaseConfig holds the run-history database settings.
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// DatasetConfig describes a SQL dataset source used by sql:// URIs.
type DatasetConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "snowflake"
	DSN    string `yaml:"dsn"`
	Query  string `yaml:"query"`
}

// CopyConfig holds the copy-drafting collaborator settings.
type CopyConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ModelID      string `yaml:"model_id"`
	Region       string `yaml:"region"`
	MaxTokens    int    `yaml:"max_tokens"`
	TemplatePath string `yaml:"template_path"` // optional Liquid brief template
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		Server:  ServerConfig{Port: 8080, Host: "localhost"},
		Logging: LoggingConfig{Level: "info"},
		Features: FeatureConfig{
			DeviceWeight:    0.5,
			ComplaintWeight: 2,
			AtRiskFromDays:  7,
			ChurnedFromDays: 30,
		},
		Scoring: ScoringConfig{
			InactiveAfterDays: 4,
			Weights:           ScoreWeights{Engagement: 0.40, Monetary: 0.35, Recency: 0.25},
		},
		Cohorts: CohortConfig{
			PaymentSensitive: PaymentSensitiveRule{
				Coupon:   Threshold{Percentile: 0.5},
				Cashback: Threshold{Percentile: 0.5},
				Recency:  Window{Min: 7, Max: 30},
			},
			HighTenure: HighTenureRule{
				MinTenure: Threshold{Value: 12},
				Recency:   Window{Min: 7, Max: 30, MaxExclusive: true},
			},
			PremiumLapsed: PremiumLapsedRule{
				Engagement: Threshold{Percentile: 0.7},
				Recency:    Window{Min: 5, Max: 20},
			},
			AtRiskHighValue: AtRiskHighValueRule{MinValue: Threshold{Percentile: 0.7}},
		},
		MicroCohorts: MicroCohortConfig{Clusters: 100, Seed: 42, Restarts: 4, MaxIterations: 100},
		ROI: ROIConfig{
			Defaults: domain.Assumptions{
				ReactivationRate:             0.08,
				AverageOrderValue:            1500,
				Margin:                       0.60,
				SendingCostPerContact:        0.25,
				IncentiveCostPerReactivation: 75,
			},
			Cohorts:   defaultCohortAssumptions(),
			Readiness: ReadinessConfig{MinSize: 1},
		},
		Storage: StorageConfig{Type: "local", LocalPath: "./out", AWSRegion: "us-west-2"},
		Redis:   RedisConfig{Addr: "localhost:6379", ResultTTLHours: 24},
		Copy:    CopyConfig{ModelID: "anthropic.claude-3-haiku-20240307-v1:0", MaxTokens: 1024},
	}
	resolveDerived(cfg)
	return cfg
}

// Load reads and parses the configuration file. The file is decoded over
// Default(), so keys it leaves out keep their defaults and keys it sets,
// zero included, are taken as written.
//
// The per-cohort ROI planning table applies only when the roi block sets
// neither defaults nor cohorts; otherwise roi.defaults reaches every cohort
// without an explicit override.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.ROI.Cohorts = nil
	cfg.Copy.Region = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	var present struct {
		ROI struct {
			Defaults *yaml.Node `yaml:"defaults"`
			Cohorts  *yaml.Node `yaml:"cohorts"`
		} `yaml:"roi"`
	}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return nil, err
	}
	if present.ROI.Defaults == nil && present.ROI.Cohorts == nil {
		cfg.ROI.Cohorts = defaultCohortAssumptions()
	}

	resolveDerived(cfg)
	return cfg, nil
}

// resolveDerived fills settings that default to another setting.
func resolveDerived(cfg *Config) {
	if cfg.Copy.Region == "" {
		cfg.Copy.Region = cfg.Storage.AWSRegion
	}
}

// defaultCohortAssumptions mirrors the per-group planning figures used by
// the growth team: incentive cost is the incentive rate times the cohort AOV.
func defaultCohortAssumptions() map[string]domain.Assumptions {
	return map[string]domain.Assumptions{
		string(domain.CohortPaymentSensitive): {ReactivationRate: 0.08, AverageOrderValue: 1500, Margin: 0.60, SendingCostPerContact: 0.25, IncentiveCostPerReactivation: 75},
		string(domain.CohortHighTenure):       {ReactivationRate: 0.12, AverageOrderValue: 1800, Margin: 0.65, SendingCostPerContact: 0.25, IncentiveCostPerReactivation: 54},
		string(domain.CohortPremiumLapsed):    {ReactivationRate: 0.15, AverageOrderValue: 2000, Margin: 0.62, SendingCostPerContact: 0.25, IncentiveCostPerReactivation: 40},
		string(domain.CohortAtRiskHighValue):  {ReactivationRate: 0.07, AverageOrderValue: 3000, Margin: 0.60, SendingCostPerContact: 0.25, IncentiveCostPerReactivation: 240},
	}
}

// Validate checks the pipeline settings. ROI assumptions are validated by
// the ROI stage itself so that a bad assumption only disables ROI.
func (c *Config) Validate() error {
	w := c.Scoring.Weights
	if w.Engagement < 0 || w.Monetary < 0 || w.Recency < 0 {
		return fmt.Errorf("scoring.weights must be non-negative")
	}
	if math.Abs(w.Sum()-1) > 1e-9 {
		return fmt.Errorf("scoring.weights must sum to 1, got %g", w.Sum())
	}
	if c.MicroCohorts.Clusters < 1 {
		return fmt.Errorf("micro_cohorts.clusters must be at least 1")
	}
	if c.MicroCohorts.Restarts < 1 || c.MicroCohorts.MaxIterations < 1 {
		return fmt.Errorf("micro_cohorts.restarts and max_iterations must be positive")
	}
	if c.Features.AtRiskFromDays > c.Features.ChurnedFromDays {
		return fmt.Errorf("features.at_risk_from_days must not exceed churned_from_days")
	}
	for name, t := range map[string]Threshold{
		"cohorts.payment_sensitive.coupon":     c.Cohorts.PaymentSensitive.Coupon,
		"cohorts.payment_sensitive.cashback":   c.Cohorts.PaymentSensitive.Cashback,
		"cohorts.high_tenure.min_tenure":       c.Cohorts.HighTenure.MinTenure,
		"cohorts.premium_lapsed.engagement":    c.Cohorts.PremiumLapsed.Engagement,
		"cohorts.at_risk_high_value.min_value": c.Cohorts.AtRiskHighValue.MinValue,
	} {
		if t.Percentile < 0 || t.Percentile > 1 {
			return fmt.Errorf("%s.percentile must be within [0,1]", name)
		}
	}
	for name, win := range map[string]Window{
		"cohorts.payment_sensitive.recency": c.Cohorts.PaymentSensitive.Recency,
		"cohorts.high_tenure.recency":       c.Cohorts.HighTenure.Recency,
		"cohorts.premium_lapsed.recency":    c.Cohorts.PremiumLapsed.Recency,
	} {
		if win.Min > win.Max {
			return fmt.Errorf("%s: min %g exceeds max %g", name, win.Min, win.Max)
		}
	}
	if c.ROI.Readiness.MinSize < 0 {
		return fmt.Errorf("roi.readiness.min_size must be non-negative")
	}
	return nil
}

// LoadFromEnv loads config from file and overrides with environment variables
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
		cfg.Database.Enabled = true
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}

	// Storage overrides
	if bucket := os.Getenv("RADAR_S3_BUCKET"); bucket != "" {
		cfg.Storage.S3Bucket = bucket
		cfg.Storage.Type = "aws"
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.Storage.AWSRegion = region
	}

	// SQL dataset source
	if dsn := os.Getenv("DATASET_DSN"); dsn != "" {
		cfg.Dataset.DSN = dsn
	}
	if model := os.Getenv("BEDROCK_MODEL_ID"); model != "" {
		cfg.Copy.ModelID = model
	}

	return cfg, nil
}
