package models

import "time"

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	Vault     VaultConfig
	Collector CollectorConfig
	Auth      AuthConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// VaultConfig holds settings for the external yield vault client
type VaultConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// CollectorConfig holds installment collection worker settings
type CollectorConfig struct {
	PollingInterval time.Duration
	ProfileFile     string
}

// AuthConfig holds the host-side caller verification settings
type AuthConfig struct {
	SigningSecret string
}
