package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/communityroots/resource-cli/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	CrossRef  CrossRefConfig  `yaml:"crossref" mapstructure:"crossref"`
	Publish   PublishConfig   `yaml:"publish" mapstructure:"publish"`
	Import    ImportConfig    `yaml:"import" mapstructure:"import"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Pricing   cost.Rates      `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the content judge.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeocodeConfig configures address geocoding. The Census geocoder is free
// and needs no key; a Google key switches the client to the paid fallback
// chain.
type GeocodeConfig struct {
	GoogleKey         string  `yaml:"google_key" mapstructure:"google_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// CrossRefConfig holds credentials for external directory lookups.
type CrossRefConfig struct {
	RegistryBaseURL string `yaml:"registry_base_url" mapstructure:"registry_base_url"`
	RegistryKey     string `yaml:"registry_key" mapstructure:"registry_key"`
	PlacesKey       string `yaml:"places_key" mapstructure:"places_key"`
}

// PublishConfig configures the platform bulk-suggestion endpoint.
type PublishConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Token   string `yaml:"token" mapstructure:"token"`
}

// ImportConfig configures import job processing.
type ImportConfig struct {
	BatchSize  int    `yaml:"batch_size" mapstructure:"batch_size"`
	Submitter  string `yaml:"submitter" mapstructure:"submitter"`
	MappingDir string `yaml:"mapping_dir" mapstructure:"mapping_dir"`
}

// VerifyConfig configures the verification agent.
type VerifyConfig struct {
	ProbeTimeoutSecs int `yaml:"probe_timeout_secs" mapstructure:"probe_timeout_secs"`
	CostBuffer       int `yaml:"cost_buffer" mapstructure:"cost_buffer"`
	CostFlushSecs    int `yaml:"cost_flush_secs" mapstructure:"cost_flush_secs"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port      int `yaml:"port" mapstructure:"port"`
	Workers   int `yaml:"workers" mapstructure:"workers"`
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESOURCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "resource-cli.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("geocode.requests_per_second", 2)
	v.SetDefault("crossref.registry_base_url", "https://api.211.org/search/v1")
	v.SetDefault("import.batch_size", 50)
	v.SetDefault("import.submitter", "resource-cli")
	v.SetDefault("import.mapping_dir", "mappings")
	v.SetDefault("verify.probe_timeout_secs", 10)
	v.SetDefault("verify.cost_buffer", 256)
	v.SetDefault("verify.cost_flush_secs", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.workers", 4)
	v.SetDefault("server.queue_size", 64)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pricing.anthropic", map[string]cost.ModelRate{})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Pricing.Anthropic) == 0 {
		cfg.Pricing = cost.DefaultRates()
	}

	return &cfg, nil
}

// Validate checks that the configuration is sufficient for the given mode
// and reports every missing or out-of-range field at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required for the sqlite driver")
			}
		default:
			problems = append(problems, "store.driver must be postgres or sqlite")
		}
	}

	checkImport := func() {
		checkStore()
		if c.Publish.BaseURL == "" {
			problems = append(problems, "publish.base_url is required")
		}
		if c.Publish.Token == "" {
			problems = append(problems, "publish.token is required")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Import.BatchSize < 1 || c.Import.BatchSize > 500 {
			problems = append(problems, "import.batch_size must be between 1 and 500")
		}
	}

	switch mode {
	case "import":
		checkImport()
	case "verify":
		checkStore()
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "serve":
		checkImport()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.Workers < 1 || c.Server.Workers > 32 {
			problems = append(problems, "server.workers must be between 1 and 32")
		}
		if c.Server.QueueSize < 1 {
			problems = append(problems, "server.queue_size must be >= 1")
		}
	case "migrate":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
