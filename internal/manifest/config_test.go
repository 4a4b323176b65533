package manifest

import (
	"strings"
	"testing"

	"github.com/your-org/handler-harness/internal/envfile"
	"github.com/your-org/handler-harness/internal/guard"
)

func envOf(vars map[string]string) envfile.Env {
	return envfile.New(vars).WithLookup(func(string) (string, bool) { return "", false })
}

func TestConfigFromDefaults(t *testing.T) {
	cfg, err := ConfigFrom(envOf(map[string]string{"MANIFEST_TABLE": "Manifest"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Table != "Manifest" || cfg.Namespace != DefaultNamespace || cfg.MaxSize != guard.DefaultMaxSize {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestConfigFromOverrides(t *testing.T) {
	cfg, err := ConfigFrom(envOf(map[string]string{
		"MANIFEST_TABLE":   "Manifest",
		"METRIC_NAMESPACE": "Harness",
		"MAX_OBJECT_BYTES": "2048",
		"PROFILE_PARAM":    "/handler/profile",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Namespace != "Harness" || cfg.MaxSize != 2048 || cfg.ProfileParam != "/handler/profile" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestConfigFromMissingTable(t *testing.T) {
	_, err := ConfigFrom(envOf(nil))
	if err == nil || !strings.Contains(err.Error(), "MANIFEST_TABLE") {
		t.Fatalf("expected MANIFEST_TABLE error, got %v", err)
	}
}

func TestConfigFromBadSize(t *testing.T) {
	if _, err := ConfigFrom(envOf(map[string]string{"MANIFEST_TABLE": "t", "MAX_OBJECT_BYTES": "lots"})); err == nil {
		t.Fatal("expected parse error")
	}
	_, err := ConfigFrom(envOf(map[string]string{"MANIFEST_TABLE": "t", "MAX_OBJECT_BYTES": "0"}))
	if err == nil || !strings.Contains(err.Error(), "MAX_OBJECT_BYTES") {
		t.Fatalf("expected MAX_OBJECT_BYTES error, got %v", err)
	}
}

func TestConfigFromBadProfileParam(t *testing.T) {
	_, err := ConfigFrom(envOf(map[string]string{"MANIFEST_TABLE": "t", "PROFILE_PARAM": "relative"}))
	if err == nil || !strings.Contains(err.Error(), "PROFILE_PARAM") {
		t.Fatalf("expected PROFILE_PARAM error, got %v", err)
	}
}
