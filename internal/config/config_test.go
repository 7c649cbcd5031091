package config

import (
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults()

	if c.BackoffBaseMs != 1000 || c.BackoffMaxMs != 30000 || c.BackoffFactor != 2 {
		t.Fatalf("backoff defaults = %d/%d/%v", c.BackoffBaseMs, c.BackoffMaxMs, c.BackoffFactor)
	}
	if c.APIConfig.RequestTimeout().Seconds() != 10 {
		t.Fatalf("request timeout = %v", c.APIConfig.RequestTimeout())
	}
	if c.MessageMode != "channel" || c.PersistMode != "none" {
		t.Fatalf("mode defaults = %q %q", c.MessageMode, c.PersistMode)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvSessionToken, "tok")
	t.Setenv(EnvAPIBaseURL, "https://api.example.com/api")
	t.Setenv(EnvMessageMode, "kafka")

	c := &Config{}
	c.ApplyEnv()
	if c.SessionConfig.Token != "tok" || c.APIConfig.BaseURL != "https://api.example.com/api" || c.MessageMode != "kafka" {
		t.Fatalf("env not applied: %+v", c)
	}
}

func TestValidate(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults()
	if err := c.Validate(); err == nil {
		t.Fatalf("expected missing baseUrl to fail validation")
	}

	c.APIConfig.BaseURL = "https://api.example.com/api"
	c.APIConfig.SocketURL = "wss://api.example.com/ws"
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	c.MessageMode = "carrier-pigeon"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected invalid messageMode to fail")
	}
}
