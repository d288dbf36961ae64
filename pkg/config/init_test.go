package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitConfigToPath_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read generated config: %v", err)
	}

	content := string(data)
	for _, want := range []string{"# dittotree configuration", "logging:", "store:", "audit:", "archive:", "DITTOTREE_"} {
		if !strings.Contains(content, want) {
			t.Errorf("Generated config missing %q", want)
		}
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if err := InitConfigToPath(path, false); err == nil {
		t.Fatal("Expected error when config already exists")
	}

	data, _ := os.ReadFile(path)
	if string(data) != "existing" {
		t.Error("Existing config should not be modified without force")
	}
}

func TestInitConfigToPath_ForceOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if err := InitConfigToPath(path, true); err != nil {
		t.Fatalf("InitConfigToPath with force failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) == "existing" {
		t.Error("Config should be overwritten with force")
	}
}

func TestInitConfig_UsesXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	if path != filepath.Join(dir, "dittotree", "config.yaml") {
		t.Errorf("Unexpected config path %q", path)
	}
	if !ConfigExists() {
		t.Error("ConfigExists should report the generated file")
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Generated config failed to load: %v", err)
	}

	defaults := GetDefaultConfig()
	if cfg.Audit.Archive.Interval != defaults.Audit.Archive.Interval {
		t.Errorf("Archive interval %v, want %v", cfg.Audit.Archive.Interval, defaults.Audit.Archive.Interval)
	}
	if cfg.Notify.DeliveryTimeout != defaults.Notify.DeliveryTimeout {
		t.Errorf("Delivery timeout %v, want %v", cfg.Notify.DeliveryTimeout, defaults.Notify.DeliveryTimeout)
	}
	if cfg.Store.Type != defaults.Store.Type {
		t.Errorf("Store type %q, want %q", cfg.Store.Type, defaults.Store.Type)
	}
}
