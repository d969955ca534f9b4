package config

import (
	_ "embed"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/photo-grouper/internal/constants"
)

//go:embed prices.yaml
var pricesYAML []byte

type Config struct {
	Database   DatabaseConfig
	PhotoPrism PhotoPrismConfig
	Embedding  EmbeddingConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	Labels     LabelsConfig
	Clustering ClusteringConfig
	Duplicates DuplicatesConfig
	Analysis   AnalysisConfig
	Log        LogConfig
	Web        WebConfig
	Prices     PricesConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist face HNSW index (optional, if empty index is rebuilt on startup)
}

type PhotoPrismConfig struct {
	URL           string // PhotoPrism base URL, used to download originals when OriginalsPath is empty
	Username      string
	Password      string
	DatabaseURL   string // MariaDB DSN of the PhotoPrism catalog (e.g., photoprism:photoprism@tcp(mariadb:3306)/photoprism)
	OriginalsPath string // Directory holding the original files referenced by the catalog
	SyncSchedule  string // cron expression for catalog syncs in serve mode, empty disables
}

type EmbeddingConfig struct {
	URL      string // defaults to http://localhost:8000
	FaceDim  int    // defaults to 128
	ImageDim int    // defaults to 1280
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type LabelsConfig struct {
	Provider string // openai, gemini or none
}

type ClusteringConfig struct {
	Eps    float64
	MinPts int
}

type DuplicatesConfig struct {
	Threshold float64
}

type AnalysisConfig struct {
	BatchSize      int
	Schedule       string // cron expression for background batches in serve mode, empty disables
	ComputeWorkers int
	IOWorkers      int
}

type LogConfig struct {
	Debug bool
}

// WebConfig holds the CORS policy of the HTTP API.
type WebConfig struct {
	AllowedOrigins []string // exact origins granted CORS access
	AllowLocalhost bool     // also grant any http(s)://localhost origin (default true)
	CORSMaxAge     int      // preflight cache lifetime in seconds
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
	Batch    RequestPricing `yaml:"batch"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

// envBoolDefault is envBool with a fallback for unset or unparsable values.
func envBoolDefault(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return b
}

// envList splits a comma-separated variable, dropping blank entries.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		PhotoPrism: PhotoPrismConfig{
			URL:           os.Getenv("PHOTOPRISM_URL"),
			Username:      os.Getenv("PHOTOPRISM_USERNAME"),
			Password:      os.Getenv("PHOTOPRISM_PASSWORD"),
			DatabaseURL:   os.Getenv("PHOTOPRISM_DATABASE_URL"),
			OriginalsPath: os.Getenv("PHOTOPRISM_ORIGINALS_PATH"),
			SyncSchedule:  os.Getenv("PHOTOPRISM_SYNC_SCHEDULE"),
		},
		Embedding: EmbeddingConfig{
			URL:      envString("EMBEDDING_URL", "http://localhost:8000"),
			FaceDim:  envInt("EMBEDDING_FACE_DIM", 128),
			ImageDim: envInt("EMBEDDING_IMAGE_DIM", 1280),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Labels: LabelsConfig{
			Provider: strings.ToLower(envString("LABELS_PROVIDER", "none")),
		},
		Clustering: ClusteringConfig{
			Eps:    envFloat("CLUSTER_EPS", constants.DefaultClusterEps),
			MinPts: envInt("CLUSTER_MIN_PTS", constants.DefaultClusterMinPts),
		},
		Duplicates: DuplicatesConfig{
			Threshold: envFloat("DUPLICATE_THRESHOLD", constants.DefaultDuplicateThreshold),
		},
		Analysis: AnalysisConfig{
			BatchSize:      envInt("ANALYSIS_BATCH_SIZE", constants.DefaultBatchSize),
			Schedule:       os.Getenv("ANALYSIS_SCHEDULE"),
			ComputeWorkers: envInt("COMPUTE_WORKERS", runtime.NumCPU()),
			IOWorkers:      envInt("IO_WORKERS", constants.DefaultIOWorkers),
		},
		Log: LogConfig{
			Debug: envBool("LOG_DEBUG"),
		},
		Web: WebConfig{
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			AllowLocalhost: envBoolDefault("WEB_ALLOW_LOCALHOST", true),
			CORSMaxAge:     envInt("WEB_CORS_MAX_AGE", 600),
		},
		Prices: prices,
	}
}

// GetModelPricing returns pricing for a specific model, with fallback defaults
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	// Return zero pricing if model not found
	return ModelPricing{}
}
