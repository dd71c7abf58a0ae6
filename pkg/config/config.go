package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Operation modes. Detection always runs; block and paywall only
// change how the HTTP layer answers identified bots.
const (
	ModeDetect  = "detect"
	ModeBlock   = "block"
	ModePaywall = "paywall"
)

// Storage backend selectors.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageKafka    = "kafka"
)

// Config is the finalized configuration the core sees. Raw sources
// (environment, YAML file, constructor arguments) are merged before
// construction; nothing downstream reads them again.
type Config struct {
	Mode                string
	ConfidenceThreshold float64
	HeuristicEnabled    bool
	HeuristicConfidence float64
	Storage             string
	TrustProxy          bool

	ServerAddr     string
	MemoryCapacity int           // retained results for the memory store; 0 = unbounded
	RecordTimeout  time.Duration // bound on best-effort persistence per request

	// ForwardDestination turns the server into a protecting reverse
	// proxy in front of an origin. Empty means serve locally.
	ForwardDestination string
}

// ValidationError names the configuration field that failed eager
// validation and why. Construction fails fast on it; the core never
// degrades silently on bad configuration.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}

func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Load builds a Config from the environment, applying defaults for
// anything unset. Backend-specific settings (LOG_PATH, PG_DSN,
// REDIS_ADDR, KAFKA_BROKERS, ...) are read by the store constructors.
func Load() Config {
	return Config{
		Mode:                getOr("MODE", ModeDetect),
		ConfidenceThreshold: getFloat("CONFIDENCE_THRESHOLD", 0.7),
		HeuristicEnabled:    getBool("HEURISTICS", true),
		HeuristicConfidence: getFloat("HEURISTIC_CONFIDENCE", 0.5),
		Storage:             getOr("STORAGE", StorageMemory),
		TrustProxy:          getBool("TRUST_PROXY", false),
		ServerAddr:          getOr("SERVER_ADDR", ":8088"),
		MemoryCapacity:      getInt("MEMORY_CAPACITY", 0),
		RecordTimeout:       time.Duration(getInt("RECORD_TIMEOUT_MS", 500)) * time.Millisecond,
		ForwardDestination:  getOr("FORWARD_DESTINATION", ""),
	}
}

// Validate checks the finalized struct. Every failure is a
// *ValidationError naming the offending field.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeDetect, ModeBlock, ModePaywall:
	default:
		return &ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", c.Mode)}
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return &ValidationError{
			Field:  "confidence_threshold",
			Reason: fmt.Sprintf("%v outside [0, 1]", c.ConfidenceThreshold),
		}
	}
	if c.HeuristicEnabled && (c.HeuristicConfidence < 0 || c.HeuristicConfidence > 1) {
		return &ValidationError{
			Field:  "heuristic_confidence",
			Reason: fmt.Sprintf("%v outside [0, 1]", c.HeuristicConfidence),
		}
	}
	switch c.Storage {
	case StorageMemory, StorageFile, StorageRedis, StoragePostgres, StorageKafka:
	default:
		return &ValidationError{Field: "storage", Reason: fmt.Sprintf("unknown backend %q", c.Storage)}
	}
	if c.RecordTimeout <= 0 {
		return &ValidationError{Field: "record_timeout", Reason: "must be positive"}
	}
	return nil
}
