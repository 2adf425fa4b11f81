package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the lab assistant service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Chroma    ChromaConfig    `mapstructure:"chroma"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug bool `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// StorageConfig contains persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds the relational store connection settings.
// URL wins when set; otherwise the DSN is assembled from the parts.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles a postgres connection string.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// OllamaConfig contains generator settings for the local inference service.
type OllamaConfig struct {
	Host          string        `mapstructure:"host"`
	Model         string        `mapstructure:"model"`
	EmbedModel    string        `mapstructure:"embed_model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	StreamTimeout time.Duration `mapstructure:"stream_timeout"`
}

// ChromaConfig contains vector retrieval service settings.
type ChromaConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    int           `mapstructure:"retries"`
}

// RiskConfig contains risk prediction service settings.
type RiskConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig contains monitoring settings.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("server.address", ":10020")
	viper.SetDefault("ollama.host", "http://127.0.0.1:11434")
	viper.SetDefault("ollama.model", "tinyllama:latest")
	viper.SetDefault("ollama.embed_model", "nomic-embed-text")
	viper.SetDefault("ollama.timeout", "60s")
	viper.SetDefault("ollama.stream_timeout", "180s")
	viper.SetDefault("chroma.base_url", "http://127.0.0.1:8000")
	viper.SetDefault("chroma.collection", "lab_rag_knowledge")
	viper.SetDefault("chroma.timeout", "15s")
	viper.SetDefault("chroma.retries", 1)
	viper.SetDefault("risk.base_url", "http://127.0.0.1:8600")
	viper.SetDefault("risk.timeout", "20s")
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("LABASSIST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional: defaults plus env are enough to boot
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}
	return &cfg
}
