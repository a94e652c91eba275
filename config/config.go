// Package config loads a Fluent node's process-level configuration: node
// identity, bind address, remote addresses, and lineage-store connection
// fields (spec.md §6), adapted from the teacher's pkg/config/config.go
// viper + env-override shape.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fluent/internal/errs"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a Fluent node process, mirroring
// config/default.yaml plus environment overrides.
type Config struct {
	Node struct {
		Name          string   `mapstructure:"name" json:"name"`
		ID            string   `mapstructure:"id" json:"id"`
		ListenAddr    string   `mapstructure:"listen_addr" json:"listen_addr"`
		Transport     string   `mapstructure:"transport" json:"transport"`
		DiscoveryTag  string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		RemoteAddrs   []string `mapstructure:"remote_addrs" json:"remote_addrs"`
		DialTimeoutMS int      `mapstructure:"dial_timeout_ms" json:"dial_timeout_ms"`
	} `mapstructure:"node" json:"node"`

	Lineage struct {
		Driver   string `mapstructure:"driver" json:"driver"`
		Host     string `mapstructure:"host" json:"host"`
		Port     int    `mapstructure:"port" json:"port"`
		User     string `mapstructure:"user" json:"user"`
		Password string `mapstructure:"password" json:"password"`
		Database string `mapstructure:"database" json:"database"`
		SSLMode  string `mapstructure:"sslmode" json:"sslmode"`
	} `mapstructure:"lineage" json:"lineage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load.
var AppConfig Config

// Load applies a .env file if present, reads default.yaml from configDir (if
// given) or ./config, merges an optional <env>.yaml from the same paths, then
// applies environment-variable overrides and unmarshals into AppConfig.
func Load(configDir, env string) (*Config, error) {
	_ = godotenv.Load()

	viper.SetConfigName("default")
	viper.SetConfigType("yaml")
	if configDir != "" {
		viper.AddConfigPath(configDir)
	}
	viper.AddConfigPath("config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "load default config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, errs.Wrap(errs.Configuration, err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("fluent")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "unmarshal config")
	}
	if AppConfig.Node.Name == "" || AppConfig.Node.ListenAddr == "" {
		return nil, errs.New(errs.Configuration, "node.name and node.listen_addr are required")
	}
	if AppConfig.Node.DialTimeoutMS == 0 {
		AppConfig.Node.DialTimeoutMS = 5000
	}
	if AppConfig.Node.Transport == "" {
		AppConfig.Node.Transport = "socket"
	}
	return &AppConfig, nil
}
