package config

import "time"

// ValidatorConfig locates the external constitutional validator. An
// empty URL means no validator is deployed; callers then receive the
// absent-safe always-compliant response.
type ValidatorConfig struct {
	// URL is the base URL of the validator service. Empty disables it.
	URL string

	// Timeout bounds a single validate call.
	Timeout time.Duration
}

// DefaultValidatorConfig returns the built-in validator defaults.
func DefaultValidatorConfig() *ValidatorConfig {
	return &ValidatorConfig{
		URL:     "",
		Timeout: 10 * time.Second,
	}
}

func (c *ValidatorConfig) applyEnv() {
	c.URL = envString("VALIDATOR_URL", c.URL)
	c.Timeout = envDuration("VALIDATOR_TIMEOUT", c.Timeout)
}
