package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/user/beacon/pkg/sink/console"
	"github.com/user/beacon/pkg/sink/stackdriver"
	"github.com/user/beacon/pkg/source/disk"
)

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRegistersSourcesSinksTransformers(t *testing.T) {
	path := writeTOML(t, `
[sources.disks]
name = "disks"
disks = ["/", "/data"]

[sources.memory]
name = "memory"

[sinks.console]
name = "console"

[transformers.tags]
env = "prod"
region = "us"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Sources) != 2 {
		t.Fatalf("Sources: got %d, want 2", len(cfg.Sources))
	}
	if len(cfg.Sinks) != 1 {
		t.Fatalf("Sinks: got %d, want 1", len(cfg.Sinks))
	}
	if _, ok := cfg.Sinks[0].Sink.(*console.Sink); !ok {
		t.Errorf("Sinks[0]: got %T, want *console.Sink", cfg.Sinks[0].Sink)
	}
	if len(cfg.Transformers) != 1 {
		t.Fatalf("Transformers: got %d, want 1", len(cfg.Transformers))
	}

	var disksRegistered bool
	for _, sd := range cfg.Sources {
		if d, ok := sd.Source.(*disk.Source); ok {
			disksRegistered = true
			if len(d.Disks) != 2 {
				t.Errorf("disk.Source.Disks: got %v", d.Disks)
			}
		}
	}
	if !disksRegistered {
		t.Errorf("expected a disk source to be registered")
	}
}

func TestLoadRegistersStackdriverSink(t *testing.T) {
	path := writeTOML(t, `
[sinks.stackdriver_metrics]
name = "sd"
project_id = "my-project"

[sinks.stackdriver_metrics.default_resource]
type = "global"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Sinks) != 1 {
		t.Fatalf("Sinks: got %d, want 1", len(cfg.Sinks))
	}
	sink, ok := cfg.Sinks[0].Sink.(*stackdriver.Sink)
	if !ok {
		t.Fatalf("Sinks[0]: got %T, want *stackdriver.Sink", cfg.Sinks[0].Sink)
	}
	_ = sink
}

func TestLoadUnknownSourceKindFails(t *testing.T) {
	path := writeTOML(t, `
[sources.bogus]
name = "x"
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("Load: expected an error for unknown source kind")
	}
}

func TestLoadUnknownSinkKindFails(t *testing.T) {
	path := writeTOML(t, `
[sinks.bogus]
name = "x"
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("Load: expected an error for unknown sink kind")
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	os.Setenv("BEACON_TEST_PROJECT", "set-project")
	defer os.Unsetenv("BEACON_TEST_PROJECT")

	out := SubstituteEnvVars(`project_id = "${BEACON_TEST_PROJECT}"`)
	if out != `project_id = "set-project"` {
		t.Errorf("SubstituteEnvVars: got %q", out)
	}

	out = SubstituteEnvVars(`name = "${BEACON_TEST_MISSING:-fallback}"`)
	if out != `name = "fallback"` {
		t.Errorf("SubstituteEnvVars default: got %q", out)
	}
}
