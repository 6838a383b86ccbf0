package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds the full runtime configuration.
type Config struct {
	Quality   QualityConfig   `yaml:"quality"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Store     StoreConfig     `yaml:"store"`
	Data      DataConfig      `yaml:"-"`
	Extractor ExtractorConfig `yaml:"-"`
	Web       WebConfig       `yaml:"-"`
}

// QualityConfig holds quality gate thresholds and score weights.
type QualityConfig struct {
	MinFaceSizePx    int            `yaml:"min_face_size_px"`
	BlurMinVariance  float64        `yaml:"blur_min_variance"`
	BlurNormVariance float64        `yaml:"blur_norm_variance"`
	BrightnessMin    float64        `yaml:"brightness_min"`
	BrightnessMax    float64        `yaml:"brightness_max"`
	MaxYawDeg        float64        `yaml:"max_yaw_deg"`
	MaxPitchDeg      float64        `yaml:"max_pitch_deg"`
	Weights          QualityWeights `yaml:"weights"`
}

// QualityWeights are the blend weights for the composite quality score.
// They are tunable; the hard-gate and monotonicity rules are the contract.
type QualityWeights struct {
	Size      float64 `yaml:"size"`
	Detection float64 `yaml:"detection"`
	Pose      float64 `yaml:"pose"`
	Blur      float64 `yaml:"blur"`
}

// MatcherConfig holds similarity threshold parameters.
type MatcherConfig struct {
	Threshold   float64 `yaml:"threshold"`    // base similarity floor
	TopK        int     `yaml:"top_k"`        // similarities averaged per identity
	QualityBand float64 `yaml:"quality_band"` // max threshold shift from query quality
	TightenOnly bool    `yaml:"tighten_only"` // never relax below the base threshold
}

// StoreConfig holds identity store limits.
type StoreConfig struct {
	MaxEmbeddingsPerIdentity int     `yaml:"max_embeddings_per_identity"`
	MinEmbeddingQuality      float64 `yaml:"min_embedding_quality"`
}

// DataConfig holds durable file locations.
type DataConfig struct {
	Dir          string // base data directory
	SnapshotPath string // identity store snapshot (JSON)
	LedgerPath   string // attendance ledger (CSV)
	RosterPath   string // identity attributes (JSON)
	IndexPath    string // ANN index (optional; empty disables persistence)
}

// ExtractorConfig points at the external detector/extractor service.
type ExtractorConfig struct {
	URL string // defaults to http://localhost:8000
}

// WebConfig holds HTTP server settings.
type WebConfig struct {
	Host string
	Port int
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

// envFloat reads an environment variable and parses it as a float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envString reads an environment variable with a fallback default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Load builds the configuration from embedded defaults plus environment
// variable overrides.
func Load() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	dataDir := envString("FACEIN_DATA_DIR", "data")
	cfg.Data = DataConfig{
		Dir:          dataDir,
		SnapshotPath: envString("FACEIN_SNAPSHOT_PATH", filepath.Join(dataDir, "face_embeddings.json")),
		LedgerPath:   envString("FACEIN_LEDGER_PATH", filepath.Join(dataDir, "attendance.csv")),
		RosterPath:   envString("FACEIN_ROSTER_PATH", filepath.Join(dataDir, "roster.json")),
		IndexPath:    os.Getenv("FACEIN_INDEX_PATH"),
	}
	cfg.Extractor = ExtractorConfig{
		URL: envString("FACEIN_EXTRACTOR_URL", "http://localhost:8000"),
	}
	cfg.Web = WebConfig{
		Host: envString("WEB_HOST", "0.0.0.0"),
		Port: envInt("WEB_PORT", 8080),
	}

	cfg.Matcher.Threshold = envFloat("FACEIN_MATCH_THRESHOLD", cfg.Matcher.Threshold)
	cfg.Matcher.QualityBand = envFloat("FACEIN_QUALITY_BAND", cfg.Matcher.QualityBand)
	cfg.Store.MaxEmbeddingsPerIdentity = envInt("FACEIN_MAX_EMBEDDINGS", cfg.Store.MaxEmbeddingsPerIdentity)
	cfg.Store.MinEmbeddingQuality = envFloat("FACEIN_MIN_QUALITY", cfg.Store.MinEmbeddingQuality)
	cfg.Quality.MinFaceSizePx = envInt("FACEIN_MIN_FACE_SIZE", cfg.Quality.MinFaceSizePx)

	return &cfg
}
