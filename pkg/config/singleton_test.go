package config

import (
	"os"
	"sync"
	"testing"
)

func resetGlobal() {
	configMutex.Lock()
	globalConfig = nil
	globalPath = ""
	configMutex.Unlock()
	initOnce = sync.Once{}
}

func TestInitializeAndReload(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	path := writeConfig(t, "proxy:\n  port: 18001\n")
	if err := Initialize(path); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}
	if got := MustGetConfig().Proxy.Port; got != 18001 {
		t.Errorf("expected port 18001, got %d", got)
	}

	// A second Initialize is ignored.
	if err := Initialize(writeConfig(t, "proxy:\n  port: 18002\n")); err != nil {
		t.Fatalf("second Initialize returned error: %v", err)
	}
	if got := GetConfig().Proxy.Port; got != 18001 {
		t.Errorf("second Initialize replaced config: port %d", got)
	}

	if err := os.WriteFile(path, []byte("proxy:\n  port: 18003\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := ReloadConfig()
	if err != nil {
		t.Fatalf("ReloadConfig() error = %v", err)
	}
	if cfg.Proxy.Port != 18003 || GetConfig().Proxy.Port != 18003 {
		t.Errorf("reload did not publish new config")
	}

	// An invalid file leaves the current config in place.
	if err := os.WriteFile(path, []byte("proxy:\n  max_attempts: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReloadConfig(); err == nil {
		t.Error("expected reload of invalid config to fail")
	}
	if GetConfig().Proxy.Port != 18003 {
		t.Error("failed reload replaced the config")
	}
}

func TestMustGetConfig_Panics(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	defer func() {
		if recover() == nil {
			t.Error("expected panic when config is not initialized")
		}
	}()
	MustGetConfig()
}
