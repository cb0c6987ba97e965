package config

// DefaultConfig returns the configuration used when no file or
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:  20,
		MaxWorkers: 5,
		OutputDir:  ".",
	}
}
