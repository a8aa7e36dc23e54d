package eval

import "fmt"

// Config contains evaluator settings.
type Config struct {
	// LookupMiss decides what LOOKUP returns for absent keys.
	// Default: MissError.
	LookupMiss MissPolicy

	// PatternCacheSize bounds the compiled regex cache. Zero selects
	// DefaultPatternCacheSize.
	PatternCacheSize int
}

// DefaultConfig returns the default evaluator configuration.
func DefaultConfig() *Config {
	return &Config{LookupMiss: MissError, PatternCacheSize: DefaultPatternCacheSize}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.PatternCacheSize < 0 {
		return fmt.Errorf("pattern cache size must not be negative, got %d", c.PatternCacheSize)
	}
	_, err := ParseMissPolicy(string(c.LookupMiss))
	return err
}
