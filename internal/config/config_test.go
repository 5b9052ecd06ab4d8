package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			CORS: CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			Database: "hanja_db",
			Username: "user",
			Path:     filepath.Join("data", "hanja.db"),
		},
		Cache: CacheConfig{
			Enabled:          true,
			URL:              "redis://localhost:6379/0",
			KeyPrefix:        "hanja:",
			TTL:              time.Hour,
			RetryAttempts:    3,
			RetryDelay:       time.Second,
			DialTimeout:      2 * time.Second,
			OperationTimeout: 2 * time.Second,
			MaxFailures:      5,
		},
		Sources: SourcesConfig{
			Priority:       []string{"naver", "daum", "national"},
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			GatherTimeout:  10 * time.Second,
			RequestTimeout: 8 * time.Second,
			MinDelay:       time.Second,
			MaxDelay:       3 * time.Second,
			RatePerSecond:  1,
			Burst:          1,
			Naver:          EndpointConfig{URL: "https://hanja.dict.naver.com/search?query={key}"},
			Daum:           EndpointConfig{URL: "https://dic.daum.net/search.do?q={key}&dic=hanja"},
			National:       EndpointConfig{URL: "https://stdict.korean.go.kr/search/searchResult.do?searchKeyword={key}&searchType=hanja"},
		},
		Merge: MergeConfig{MaxExamples: 3},
		Lookup: LookupConfig{
			PersistMode:      "overwrite",
			StoreReadThrough: true,
			DedupeInflight:   true,
		},
		Export: ExportConfig{Directory: "exports"},
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name              string
		configContent     string
		env               map[string]string
		useExplicitPath   bool
		wantErr           bool
		want              func() *Config
		wantErrorContains []string
	}{
		{
			name:          "no config file uses defaults",
			configContent: "",
			want:          defaultConfig,
		},
		{
			name: "valid config file with custom values",
			configContent: `server:
  port: 9090
database:
  driver: sqlite
  path: custom/hanja.db
cache:
  enabled: false
  ttl: 30m
sources:
  priority: [daum, naver]
  gather_timeout: 5s
merge:
  max_examples: 5
lookup:
  persist_mode: insert_if_absent
  dedupe_inflight: false
`,
			want: func() *Config {
				cfg := defaultConfig()
				cfg.Server.Port = 9090
				cfg.Database.Driver = "sqlite"
				cfg.Database.Path = "custom/hanja.db"
				cfg.Cache.Enabled = false
				cfg.Cache.TTL = 30 * time.Minute
				cfg.Sources.Priority = []string{"daum", "naver"}
				cfg.Sources.GatherTimeout = 5 * time.Second
				cfg.Merge.MaxExamples = 5
				cfg.Lookup.PersistMode = "insert_if_absent"
				cfg.Lookup.DedupeInflight = false
				return cfg
			},
		},
		{
			name: "explicit config file path",
			configContent: `sources:
  naver:
    url: http://127.0.0.1:8081/naver?query={key}
`,
			useExplicitPath: true,
			want: func() *Config {
				cfg := defaultConfig()
				cfg.Sources.Naver.URL = "http://127.0.0.1:8081/naver?query={key}"
				return cfg
			},
		},
		{
			name:          "secrets come from the environment",
			configContent: "",
			env: map[string]string{
				"DB_PASSWORD":    "secret",
				"REDIS_URL":      "redis://cache:6380/1",
				"REDIS_PASSWORD": "redis-secret",
			},
			want: func() *Config {
				cfg := defaultConfig()
				cfg.Database.Password = "secret"
				cfg.Cache.URL = "redis://cache:6380/1"
				cfg.Cache.Password = "redis-secret"
				return cfg
			},
		},
		{
			name: "invalid YAML format",
			configContent: `server:
  port: 9090
  invalid yaml format here [[[
`,
			wantErr: true,
			wantErrorContains: []string{
				"configuration file found but could not be read",
				"Please check the file format and permissions",
			},
		},
		{
			name: "source URL without key placeholder",
			configContent: `sources:
  daum:
    url: https://dic.daum.net/search.do
`,
			wantErr: true,
			wantErrorContains: []string{
				"invalid configuration",
				"sources.daum.url must be an http(s) URL containing the key placeholder",
			},
		},
		{
			name: "unknown source in priority",
			configContent: `sources:
  priority: [naver, wiktionary]
`,
			wantErr:           true,
			wantErrorContains: []string{"invalid configuration", "priority[1]"},
		},
		{
			name: "unknown persist mode",
			configContent: `lookup:
  persist_mode: append
`,
			wantErr:           true,
			wantErrorContains: []string{"invalid configuration", "persist_mode"},
		},
		{
			name: "export header that does not exist",
			configContent: `export:
  header: does/not/exist.md
`,
			wantErr:           true,
			wantErrorContains: []string{"export.header must be an existing and readable file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var configPath string
			if tt.useExplicitPath {
				configPath = filepath.Join(tempDir, "hanjadb.yml")
				require.NoError(t, os.WriteFile(configPath, []byte(tt.configContent), 0644))
			} else {
				if tt.configContent != "" {
					require.NoError(t, os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(tt.configContent), 0644))
				}
				t.Chdir(tempDir)
			}

			got, err := Load(configPath)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				for _, wantMsg := range tt.wantErrorContains {
					assert.Contains(t, err.Error(), wantMsg)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want(), got)
		})
	}
}

func TestNewConfigLoader_RegistersTranslations(t *testing.T) {
	t.Chdir(t.TempDir())

	loader, err := NewConfigLoader("")
	require.NoError(t, err)

	err = loader.validator.Var("https://dic.daum.net/search.do", "urltemplate")
	require.Error(t, err)
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
	assert.Equal(t, "must be an http(s) URL containing the key placeholder",
		strings.TrimSpace(validationErrors[0].Translate(loader.translator)))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}
