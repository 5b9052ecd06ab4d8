package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Merge    MergeConfig    `mapstructure:"merge"`
	Lookup   LookupConfig   `mapstructure:"lookup"`
	Export   ExportConfig   `mapstructure:"export"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port" validate:"min=1,max=65535"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver          string            `mapstructure:"driver" validate:"oneof=mysql postgres sqlite"`
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Database        string            `mapstructure:"database"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	Path            string            `mapstructure:"path" validate:"required_if=Driver sqlite"`
	TLS             bool              `mapstructure:"tls"`
	Params          map[string]string `mapstructure:"params"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int               `mapstructure:"conn_max_lifetime_seconds"`
}

// CacheConfig configures the Redis cache in front of the lookup pipeline.
type CacheConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	URL              string        `mapstructure:"url" validate:"required_if=Enabled true,omitempty,url"`
	Password         string        `mapstructure:"password"`
	KeyPrefix        string        `mapstructure:"key_prefix"`
	TTL              time.Duration `mapstructure:"ttl" validate:"gt=0"`
	RetryAttempts    uint          `mapstructure:"retry_attempts" validate:"min=1"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	MaxFailures      int           `mapstructure:"max_failures" validate:"min=1"`
}

// SourcesConfig configures the external dictionaries. Priority is the
// order used by the merge: earlier sources win.
type SourcesConfig struct {
	Priority       []string       `mapstructure:"priority" validate:"min=1,unique,dive,oneof=naver daum national"`
	UserAgent      string         `mapstructure:"user_agent" validate:"required"`
	GatherTimeout  time.Duration  `mapstructure:"gather_timeout" validate:"gt=0"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout" validate:"gt=0"`
	MinDelay       time.Duration  `mapstructure:"min_delay"`
	MaxDelay       time.Duration  `mapstructure:"max_delay" validate:"gtefield=MinDelay"`
	RatePerSecond  float64        `mapstructure:"rate_per_second" validate:"gt=0"`
	Burst          int            `mapstructure:"burst" validate:"min=1"`
	Naver          EndpointConfig `mapstructure:"naver"`
	Daum           EndpointConfig `mapstructure:"daum"`
	National       EndpointConfig `mapstructure:"national"`
}

type EndpointConfig struct {
	URL string `mapstructure:"url" validate:"required,urltemplate"`
}

type MergeConfig struct {
	MaxExamples int `mapstructure:"max_examples" validate:"min=0"`
}

type LookupConfig struct {
	PersistMode      string `mapstructure:"persist_mode" validate:"oneof=overwrite insert_if_absent"`
	StoreReadThrough bool   `mapstructure:"store_read_through"`
	DedupeInflight   bool   `mapstructure:"dedupe_inflight"`
}

type ExportConfig struct {
	Directory string `mapstructure:"directory"`
	// Header is an optional Markdown file placed above the study sheet.
	Header string `mapstructure:"header" validate:"omitempty,file"`
	// Template replaces the built-in study sheet template.
	Template string `mapstructure:"template" validate:"omitempty,file"`
	// FontFile is a TrueType font with CJK and Hangul glyphs used for PDF output.
	FontFile string `mapstructure:"font_file" validate:"omitempty,file"`
}

// Load reads configFile, or config.yaml from the working directory and
// $HOME/.config/hanjadb when configFile is empty.
func Load(configFile string) (*Config, error) {
	loader, err := NewConfigLoader(configFile)
	if err != nil {
		return nil, err
	}
	return loader.Load()
}

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/hanjadb")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

func (loader *ConfigLoader) Load() (*Config, error) {
	v := loader.viper

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.database", "hanja_db")
	v.SetDefault("database.username", "user")
	v.SetDefault("database.path", filepath.Join("data", "hanja.db"))

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.url", "redis://localhost:6379/0")
	v.SetDefault("cache.key_prefix", "hanja:")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.retry_attempts", 3)
	v.SetDefault("cache.retry_delay", time.Second)
	v.SetDefault("cache.dial_timeout", 2*time.Second)
	v.SetDefault("cache.operation_timeout", 2*time.Second)
	v.SetDefault("cache.max_failures", 5)

	v.SetDefault("sources.priority", []string{"naver", "daum", "national"})
	v.SetDefault("sources.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("sources.gather_timeout", 10*time.Second)
	v.SetDefault("sources.request_timeout", 8*time.Second)
	v.SetDefault("sources.min_delay", time.Second)
	v.SetDefault("sources.max_delay", 3*time.Second)
	v.SetDefault("sources.rate_per_second", 1.0)
	v.SetDefault("sources.burst", 1)
	v.SetDefault("sources.naver.url", "https://hanja.dict.naver.com/search?query={key}")
	v.SetDefault("sources.daum.url", "https://dic.daum.net/search.do?q={key}&dic=hanja")
	v.SetDefault("sources.national.url", "https://stdict.korean.go.kr/search/searchResult.do?searchKeyword={key}&searchType=hanja")

	v.SetDefault("merge.max_examples", 3)

	v.SetDefault("lookup.persist_mode", "overwrite")
	v.SetDefault("lookup.store_read_through", true)
	v.SetDefault("lookup.dedupe_inflight", true)

	v.SetDefault("export.directory", "exports")
	v.SetDefault("export.header", "")
	v.SetDefault("export.template", "")
	v.SetDefault("export.font_file", "")

	// Secrets are bound to environment variables only (not from config file)
	if err := v.BindEnv("database.password", "DB_PASSWORD"); err != nil {
		return nil, fmt.Errorf("failed to bind DB_PASSWORD environment variable: %w", err)
	}
	if err := v.BindEnv("cache.url", "REDIS_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind REDIS_URL environment variable: %w", err)
	}

	if err := v.BindEnv("cache.password", "REDIS_PASSWORD"); err != nil {
		return nil, fmt.Errorf("failed to bind REDIS_PASSWORD environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := loader.validator.Struct(cfg); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMsgs []string
		for _, e := range validationErrors {
			errorMsgs = append(errorMsgs, e.Translate(loader.translator))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errorMsgs, ", "))
	}

	return &cfg, nil
}
