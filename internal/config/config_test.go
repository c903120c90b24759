package config

import (
	"strings"
	"testing"
	"time"
)

func validTestConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 6 * time.Minute,
		},
		Chat: ChatConfig{
			SystemPrompt:    "test",
			HistoryLimit:    50,
			UpstreamTimeout: 5 * time.Minute,
		},
		LLM: LLMConfig{
			Provider: "openai",
			BaseURL:  "http://localhost:8000/v1",
			Model:    "gpt-4o-mini",
		},
		Cache: CacheConfig{
			RedisAddr: "localhost:6379",
			Capacity:  15,
			TTL:       30 * time.Minute,
		},
		Database: DatabaseConfig{
			URL: "postgres://u:p@localhost:5432/db",
		},
		Blob: BlobConfig{
			Region: "us-east-1",
			Bucket: "bucket",
		},
	}
}

func TestValidateConfigAcceptsSaneValues(t *testing.T) {
	if err := validateConfig(validTestConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestWriteTimeoutMustOutliveUpstreamTimeout(t *testing.T) {
	// Более короткий write_timeout обрубил бы стрим посреди ответа
	cfg := validTestConfig()
	cfg.Server.WriteTimeout = 30 * time.Second

	err := validateConfig(cfg)
	if err == nil {
		t.Fatal("write_timeout below upstream_timeout was accepted")
	}
	if !strings.Contains(err.Error(), "write_timeout") {
		t.Errorf("error does not name write_timeout: %v", err)
	}

	// Нулевой write_timeout означает "без потолка" — допустимо
	cfg.Server.WriteTimeout = 0
	if err := validateConfig(cfg); err != nil {
		t.Errorf("zero write_timeout rejected: %v", err)
	}
}

func TestValidateConfigRejectsBrokenValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad provider", func(c *Config) { c.LLM.Provider = "gemini" }},
		{"empty model", func(c *Config) { c.LLM.Model = "" }},
		{"bad base_url", func(c *Config) { c.LLM.BaseURL = "localhost:8000" }},
		{"zero cache capacity", func(c *Config) { c.Cache.Capacity = 0 }},
		{"zero cache ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"empty database url", func(c *Config) { c.Database.URL = " " }},
		{"empty blob bucket", func(c *Config) { c.Blob.Bucket = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("broken config accepted")
			}
		})
	}
}
