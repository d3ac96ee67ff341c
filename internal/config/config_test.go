package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate, got: %v", err)
	}
}

func TestValidateMissingFactoryAddressAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.Chain.FactoryAddress = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty factory_address must be allowed (degrades to empty pool list), got: %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Chain.RPCURL = ""
	cfg.Redis.Addr = ""
	cfg.Poll.ChainInterval = duration{0}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "rpc_url", "redis: addr", "chain_interval"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidateAggregateIntervalOrdering(t *testing.T) {
	cfg := Defaults()
	cfg.Poll.ChainInterval = duration{time.Minute}
	cfg.Poll.AggregateInterval = duration{30 * time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("aggregate_interval < chain_interval should fail validation")
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("45s")); err != nil {
		t.Fatalf("parse duration: %v", err)
	}
	if d.Duration != 45*time.Second {
		t.Fatalf("got %v want 45s", d.Duration)
	}
	if err := d.UnmarshalText([]byte("nonsense")); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := Defaults()
	cfg.Admin.EncryptedKeyPath = "/etc/bella/key.json"
	cfg.Admin.KeyPassword = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("encrypted_key_path without key_password should fail validation")
	}
}
