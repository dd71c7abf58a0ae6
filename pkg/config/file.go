package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoadFile merges a YAML configuration file with the environment,
// environment winning, and returns the finalized struct. Keys use
// snake_case in the file (mode, confidence_threshold, storage, ...)
// and the matching upper-cased names in the environment.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Load()
	v.SetDefault("mode", defaults.Mode)
	v.SetDefault("confidence_threshold", defaults.ConfidenceThreshold)
	v.SetDefault("heuristics", defaults.HeuristicEnabled)
	v.SetDefault("heuristic_confidence", defaults.HeuristicConfidence)
	v.SetDefault("storage", defaults.Storage)
	v.SetDefault("trust_proxy", defaults.TrustProxy)
	v.SetDefault("server_addr", defaults.ServerAddr)
	v.SetDefault("memory_capacity", defaults.MemoryCapacity)
	v.SetDefault("record_timeout_ms", int(defaults.RecordTimeout/time.Millisecond))
	v.SetDefault("forward_destination", defaults.ForwardDestination)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	return Config{
		Mode:                v.GetString("mode"),
		ConfidenceThreshold: v.GetFloat64("confidence_threshold"),
		HeuristicEnabled:    v.GetBool("heuristics"),
		HeuristicConfidence: v.GetFloat64("heuristic_confidence"),
		Storage:             v.GetString("storage"),
		TrustProxy:          v.GetBool("trust_proxy"),
		ServerAddr:          v.GetString("server_addr"),
		MemoryCapacity:      v.GetInt("memory_capacity"),
		RecordTimeout:       time.Duration(v.GetInt("record_timeout_ms")) * time.Millisecond,
		ForwardDestination:  v.GetString("forward_destination"),
	}, nil
}
