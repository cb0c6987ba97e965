package config

// Config is the top-level ghtools configuration, corresponding to
// .ghtools.yml. The GitHub token is deliberately not part of the file;
// it is taken from a flag or the GITHUB_TOKEN environment variable.
type Config struct {
	Org        string    `yaml:"org" koanf:"org"`
	BatchSize  int       `yaml:"batch_size" koanf:"batch_size"`
	MaxWorkers int       `yaml:"max_workers" koanf:"max_workers"`
	LimitUsers int       `yaml:"limit_users" koanf:"limit_users"`
	OutputDir  string    `yaml:"output_dir" koanf:"output_dir"`
	App        AppConfig `yaml:"app" koanf:"app"`
}

// AppConfig holds GitHub App identity settings for the token commands.
type AppConfig struct {
	ID             int64  `yaml:"id" koanf:"id"`
	PrivateKeyPath string `yaml:"private_key_path" koanf:"private_key_path"`
}
