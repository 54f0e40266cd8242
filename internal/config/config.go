package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Vector store backends selectable with VECTOR_STORE.
const (
	VectorStoreQdrant = "qdrant"
	VectorStoreMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	LLMBaseURL         string
	LLMModelName       string
	LLMAPIKey          string
	EmbeddingBaseURL   string
	EmbeddingModelName string
	DBPath             string
	ReportsDir         string
	QdrantURL          string
	QdrantCollection   string
	VectorStore        string
	VectorSize         int
	APIPort            string
	LogLevel           slog.Level
	LogFormat          string

	// Retrieval
	RetrievalTopK        int
	RetrievalMaxDistance float64
	EmbeddingMaxAttempts int
	EmbeddingBackoff     time.Duration
	RetrievalTimeout     time.Duration

	// Generation
	GenerationTimeout time.Duration
	MaxToolIterations int
	MaxHistoryTurns   int
	// RequestsPerSecond is one process-wide budget shared by chat and embedding calls.
	RequestsPerSecond float64

	// Ingestion
	ChunkSize    int
	ChunkOverlap int

	// PolicyFile is an optional YAML file overriding the compliance policy.
	PolicyFile string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent directory, it is loaded first.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Walk up a few levels so commands run from subdirectories still pick up the project .env.
	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "dummy-key"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		DBPath:             getEnv("DB_PATH", "./data/research-agent.db"),
		ReportsDir:         getEnv("REPORTS_DIR", "./data/reports"),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "investment_research"),
		VectorStore:        getEnv("VECTOR_STORE", VectorStoreQdrant),
		APIPort:            getEnv("API_PORT", "8000"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		PolicyFile:         getEnv("POLICY_FILE", ""),
	}

	if cfg.VectorStore != VectorStoreQdrant && cfg.VectorStore != VectorStoreMemory {
		return nil, fmt.Errorf("VECTOR_STORE must be %q or %q, got %q", VectorStoreQdrant, VectorStoreMemory, cfg.VectorStore)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}

	// VECTOR_SIZE must match the embedding model output; changing it requires recreating the collection.
	vectorSizeStr := getEnv("VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("VECTOR_SIZE must be greater than 0")
	}
	cfg.VectorSize = vectorSize

	ints := []struct {
		key  string
		def  int
		min  int
		dest *int
	}{
		{"RETRIEVAL_TOP_K", 5, 1, &cfg.RetrievalTopK},
		{"EMBEDDING_MAX_ATTEMPTS", 3, 1, &cfg.EmbeddingMaxAttempts},
		{"MAX_TOOL_ITERATIONS", 4, 1, &cfg.MaxToolIterations},
		{"MAX_HISTORY_TURNS", 40, 2, &cfg.MaxHistoryTurns},
		{"CHUNK_SIZE", 1000, 100, &cfg.ChunkSize},
		{"CHUNK_OVERLAP", 200, 0, &cfg.ChunkOverlap},
	}
	for _, v := range ints {
		n, err := getEnvInt(v.key, v.def)
		if err != nil {
			return nil, err
		}
		if n < v.min {
			return nil, fmt.Errorf("%s must be at least %d", v.key, v.min)
		}
		*v.dest = n
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"EMBEDDING_BACKOFF", 200 * time.Millisecond, &cfg.EmbeddingBackoff},
		{"RETRIEVAL_TIMEOUT", 15 * time.Second, &cfg.RetrievalTimeout},
		{"GENERATION_TIMEOUT", 60 * time.Second, &cfg.GenerationTimeout},
	}
	for _, v := range durations {
		d, err := getEnvDuration(v.key, v.def)
		if err != nil {
			return nil, err
		}
		*v.dest = d
	}

	if cfg.RetrievalMaxDistance, err = getEnvFloat("RETRIEVAL_MAX_DISTANCE", 0.65); err != nil {
		return nil, err
	}
	if cfg.RetrievalMaxDistance <= 0 || cfg.RetrievalMaxDistance > 2 {
		return nil, fmt.Errorf("RETRIEVAL_MAX_DISTANCE must be in (0, 2]")
	}
	if cfg.RequestsPerSecond, err = getEnvFloat("REQUESTS_PER_SECOND", 5); err != nil {
		return nil, err
	}

	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
