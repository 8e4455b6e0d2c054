package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration. It is loaded once at
// startup and passed by reference; there is no package-level instance.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Debug    bool           `mapstructure:"debug"`
}

// ServerConfig covers the listening side: where to bind, which directory
// the server is allowed to serve from, and session housekeeping.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	RootDir        string        `mapstructure:"root_dir"`
	MaxChunkBytes  int64         `mapstructure:"max_chunk_bytes"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

// TransferConfig covers chunking and compression behavior shared by the
// server handlers and the client defaults.
type TransferConfig struct {
	ChunkSize            int64   `mapstructure:"chunk_size"`
	MaxParallelChunks    int     `mapstructure:"max_parallel_chunks"`
	CompressionLevel     int     `mapstructure:"compression_level"`
	CompressionAlgorithm string  `mapstructure:"compression_algorithm"`
	CompressionThreshold float64 `mapstructure:"compression_threshold"`
	CompressionSample    int64   `mapstructure:"compression_sample"`
}

type MetadataConfig struct {
	Dir string `mapstructure:"dir"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoadConfig reads config.yaml from the given path (and the working
// directory), layers SWIFTBYTE_* environment variables on top, and falls
// back to defaults for everything else.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("swiftbyte")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Printf("⚠️ Could not read config file, using defaults: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.root_dir", "./files")
	v.SetDefault("server.max_chunk_bytes", 128*1024*1024)
	v.SetDefault("server.session_timeout", "1h")
	v.SetDefault("server.sweep_interval", "60s")

	v.SetDefault("transfer.chunk_size", 1024*1024)
	v.SetDefault("transfer.max_parallel_chunks", 4)
	v.SetDefault("transfer.compression_level", 6)
	v.SetDefault("transfer.compression_algorithm", "gzip")
	v.SetDefault("transfer.compression_threshold", 0.9)
	v.SetDefault("transfer.compression_sample", 1024*1024)

	v.SetDefault("metadata.dir", "./data/metadata")
}
