// Package config reads the application settings from the environment and the
// optional corpus manifest.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"legischat/types"
)

type LLMConfig struct {
	APIKey         string
	ChatModel      string
	Temperature    float32
	EmbeddingModel string
	EmbeddingDim   int
	SummaryBackend string
	OllamaURL      string
	OllamaModel    string
	RateLimitRPS   float64
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	Table    string
}

func (c PostgresConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

type RetrievalConfig struct {
	K                  int
	MemoryK            int
	MaxContextTokens   int
	FilenameHintFilter bool
}

type Config struct {
	Loader          types.Config
	LLM             LLMConfig
	Postgres        PostgresConfig
	Retrieval       RetrievalConfig
	IndexBackend    string
	MemoryIndexPath string // snapshot file for the memory backend
	StripAccents    bool
	RequestTimeout  time.Duration
	MaxRetries      int
	ServerAddr      string
}

// DefaultCorpus maps the corpus directories to their document types.
func DefaultCorpus() map[string]types.DocType {
	return map[string]types.DocType{
		"01_constitucion":              types.DocTypeConstitution,
		"02_convenios_internacionales": types.DocTypeInternationalAgreement,
		"03_leyes":                     types.DocTypeStatute,
		"04_codigos":                   types.DocTypeCode,
	}
}

// LoadEnv loads a .env file when present. A missing file is not an error.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func Load() (*Config, error) {
	cfg := &Config{
		Loader: types.Config{
			DataPath:         getString("DATA_PATH", "data"),
			Corpus:           DefaultCorpus(),
			ChunkSize:        getInt("CHUNK_SIZE", 2000),
			ChunkOverlap:     getInt("CHUNK_OVERLAP", 200),
			BatchSize:        getInt("BATCH_SIZE", 100),
			WriterWorkers:    getInt("WRITER_WORKERS", 4),
			RepresentWorkers: getInt("REPRESENT_WORKERS", 4),
			MonitoringTime:   getDuration("WATCH_SETTLE", 10*time.Second),
			WatchInterval:    getDuration("WATCH_INTERVAL", 2*time.Second),
		},
		LLM: LLMConfig{
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			ChatModel:      getString("CHAT_MODEL", "gpt-3.5-turbo"),
			Temperature:    float32(getFloat("CHAT_TEMPERATURE", 0)),
			EmbeddingModel: getString("EMBEDDING_MODEL", "text-embedding-3-large"),
			EmbeddingDim:   getInt("EMBEDDING_DIM", 3072),
			SummaryBackend: getString("SUMMARY_BACKEND", "ollama"),
			OllamaURL:      getString("OLLAMA_URL", "http://localhost:11434/api/generate"),
			OllamaModel:    getString("OLLAMA_MODEL", "llama3.2"),
			RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 5),
		},
		Postgres: PostgresConfig{
			Host:     getString("PG_HOST", "localhost"),
			Port:     getInt("PG_PORT", 5432),
			User:     os.Getenv("PG_USER"),
			Password: os.Getenv("PG_PASS"),
			DBName:   os.Getenv("PG_DB_NAME"),
			Table:    getString("PG_TABLE", "legal_chunks"),
		},
		Retrieval: RetrievalConfig{
			K:                  getInt("RETRIEVER_K", 4),
			MemoryK:            getInt("MEMORY_K", 5),
			MaxContextTokens:   getInt("MAX_CONTEXT_TOKENS", 6000),
			FilenameHintFilter: getBool("FILENAME_HINT_FILTER", false),
		},
		IndexBackend:    getString("INDEX_BACKEND", "postgres"),
		MemoryIndexPath: getString("MEMORY_INDEX_PATH", "index.gob"),
		StripAccents:    getBool("STRIP_FILENAME_ACCENTS", false),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", 60*time.Second),
		MaxRetries:      getInt("MAX_RETRIES", 3),
		ServerAddr:      getString("SERVER_ADDR", ":3000"),
	}

	if path := os.Getenv("CORPUS_FILE"); path != "" {
		corpus, err := LoadCorpus(path)
		if err != nil {
			return nil, err
		}
		cfg.Loader.Corpus = corpus
	}

	if cfg.Loader.ChunkOverlap >= cfg.Loader.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.Loader.ChunkOverlap, cfg.Loader.ChunkSize)
	}
	return cfg, nil
}

type corpusFile struct {
	Directories []struct {
		Path    string `yaml:"path"`
		DocType string `yaml:"doc_type"`
	} `yaml:"directories"`
}

// LoadCorpus reads a manifest of the form
//
//	directories:
//	  - path: 01_constitucion
//	    doc_type: constitucion
func LoadCorpus(path string) (map[string]types.DocType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus manifest: %w", err)
	}
	var f corpusFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse corpus manifest: %w", err)
	}
	corpus := make(map[string]types.DocType, len(f.Directories))
	for _, d := range f.Directories {
		dt := types.DocType(d.DocType)
		if !dt.Valid() {
			return nil, fmt.Errorf("corpus manifest: unknown doc_type %q for %s", d.DocType, d.Path)
		}
		corpus[d.Path] = dt
	}
	if len(corpus) == 0 {
		return nil, errors.New("corpus manifest: no directories")
	}
	return corpus, nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
