// Package config provides typed configuration for the coordination
// substrate. Values come from the environment (optionally seeded by a
// .env file loaded in main); every struct has a Default constructor so
// embedders can start from sane values and override selectively.
package config

// Config is the umbrella configuration object used throughout the
// application.
type Config struct {
	Worker    *WorkerConfig
	Consensus *ConsensusConfig
	Monitor   *MonitorConfig
	Retention *RetentionConfig
	Validator *ValidatorConfig
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Worker:    DefaultWorkerConfig(),
		Consensus: DefaultConsensusConfig(),
		Monitor:   DefaultMonitorConfig(),
		Retention: DefaultRetentionConfig(),
		Validator: DefaultValidatorConfig(),
	}
}

// FromEnv returns the built-in configuration with environment overrides
// applied.
func FromEnv() *Config {
	cfg := Default()
	cfg.Worker.applyEnv()
	cfg.Consensus.applyEnv()
	cfg.Monitor.applyEnv()
	cfg.Retention.applyEnv()
	cfg.Validator.applyEnv()
	return cfg
}
