package upload

import (
	"fmt"
	"time"
)

// Config holds the endpoints and the retry/timeout policy of an Orchestrator
type Config struct {
	CredentialURL string // backend endpoint issuing presigned credentials
	FallbackURL   string // backend multipart endpoint used after direct attempts fail

	OptimizeThreshold int64 // payloads above this size are optimized when they are images
	CredentialTimeout time.Duration
	TransferTimeout   time.Duration
	FallbackTimeout   time.Duration
	MaxAttempts       int // direct attempts including the first
	RetryDelay        time.Duration
}

// DefaultConfig returns the upload defaults for the given backend base URL
func DefaultConfig(backendURL string) Config {
	return Config{
		CredentialURL:     backendURL + "/api/uploads/credentials",
		FallbackURL:       backendURL + "/api/upload",
		OptimizeThreshold: 150 << 20,
		CredentialTimeout: 10 * time.Second,
		TransferTimeout:   5 * time.Minute,
		FallbackTimeout:   5 * time.Minute,
		MaxAttempts:       2,
		RetryDelay:        3 * time.Second,
	}
}

// Validate checks if the configuration is usable
func (c Config) Validate() error {
	if c.CredentialURL == "" {
		return fmt.Errorf("credential url is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.CredentialTimeout <= 0 || c.TransferTimeout <= 0 {
		return fmt.Errorf("credential and transfer timeouts must be positive")
	}
	if c.FallbackURL != "" && c.FallbackTimeout <= 0 {
		return fmt.Errorf("fallback timeout must be positive when a fallback url is set")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative")
	}
	return nil
}
