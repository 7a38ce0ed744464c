// Package config loads the TOML pipeline configuration file and builds a
// beacon.Configuration from it, failing fast on any unrecognized source,
// sink, or transformer kind.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/user/beacon"
	"github.com/user/beacon/pkg/sink/console"
	"github.com/user/beacon/pkg/sink/stackdriver"
	"github.com/user/beacon/pkg/source/disk"
	"github.com/user/beacon/pkg/source/file"
	"github.com/user/beacon/pkg/source/load"
	"github.com/user/beacon/pkg/source/memory"
	"github.com/user/beacon/pkg/transformer"
)

// rawConfig mirrors the TOML file's shape: top-level tables keyed by kind.
// Entries are loosely typed (map[string]toml.Primitive) so each kind can
// decode only the fields it recognizes and reject the rest by omission.
type rawConfig struct {
	Sources      map[string]toml.Primitive `toml:"sources"`
	Sinks        map[string]toml.Primitive `toml:"sinks"`
	Transformers map[string]toml.Primitive `toml:"transformers"`
}

type sourceDisksEntry struct {
	Name  string   `toml:"name"`
	Disks []string `toml:"disks"`
}

type sourceFileEntry struct {
	Name     string `toml:"name"`
	Filepath string `toml:"filepath"`
	Codec    string `toml:"codec"`
}

type sourceEmptyEntry struct {
	Name string `toml:"name"`
}

type resourceEntry struct {
	Type   string            `toml:"type"`
	Labels map[string]string `toml:"labels"`
}

type mappingEntry struct {
	MetricType string        `toml:"metric_type"`
	Resource   resourceEntry `toml:"resource"`
}

type sinkStackdriverEntry struct {
	Name            string         `toml:"name"`
	ProjectID       string         `toml:"project_id"`
	DefaultResource resourceEntry  `toml:"default_resource"`
	Mappings        []mappingEntry `toml:"mappings"`
	CredentialsPath string         `toml:"credentials_path"`
	Retries         int            `toml:"retries"`
	BatchSize       int            `toml:"batch_size"`
	PeriodInSecs    int            `toml:"period_in_secs"`
}

// Load reads the TOML file at path, substitutes environment variables, and
// builds a beacon.Configuration. Unknown kinds are a fatal error, matching
// the external-interface contract.
func Load(path string) (*beacon.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	content := SubstituteEnvVars(string(data))

	var raw rawConfig
	meta, err := toml.Decode(content, &raw)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := beacon.NewConfiguration()

	for kind, prim := range raw.Sources {
		if err := decodeSource(cfg, &meta, kind, prim); err != nil {
			return nil, err
		}
	}
	for kind, prim := range raw.Sinks {
		if err := decodeSink(cfg, &meta, kind, prim); err != nil {
			return nil, err
		}
	}
	for kind, prim := range raw.Transformers {
		if err := decodeTransformer(cfg, &meta, kind, prim); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func decodeSource(cfg *beacon.Configuration, meta *toml.MetaData, kind string, prim toml.Primitive) error {
	switch kind {
	case "disks":
		var e sourceDisksEntry
		if err := meta.PrimitiveDecode(prim, &e); err != nil {
			return fmt.Errorf("config: decode source 'disks': %w", err)
		}
		cfg.RegisterSource(e.Name, disk.New(e.Disks))
	case "memory":
		var e sourceEmptyEntry
		if err := meta.PrimitiveDecode(prim, &e); err != nil {
			return fmt.Errorf("config: decode source 'memory': %w", err)
		}
		cfg.RegisterSource(e.Name, memory.New())
	case "load":
		var e sourceEmptyEntry
		if err := meta.PrimitiveDecode(prim, &e); err != nil {
			return fmt.Errorf("config: decode source 'load': %w", err)
		}
		cfg.RegisterSource(e.Name, load.New())
	case "file":
		var e sourceFileEntry
		if err := meta.PrimitiveDecode(prim, &e); err != nil {
			return fmt.Errorf("config: decode source 'file': %w", err)
		}
		cfg.RegisterSource(e.Name, file.New(e.Filepath, file.Codec(e.Codec)))
	default:
		return fmt.Errorf("Unknown source '%s'", kind)
	}
	return nil
}

func decodeSink(cfg *beacon.Configuration, meta *toml.MetaData, kind string, prim toml.Primitive) error {
	switch kind {
	case "console":
		var e sourceEmptyEntry
		if err := meta.PrimitiveDecode(prim, &e); err != nil {
			return fmt.Errorf("config: decode sink 'console': %w", err)
		}
		cfg.RegisterSink(e.Name, beacon.DefaultSinkConfig(), console.New())
	case "stackdriver_metrics":
		var e sinkStackdriverEntry
		if err := meta.PrimitiveDecode(prim, &e); err != nil {
			return fmt.Errorf("config: decode sink 'stackdriver_metrics': %w", err)
		}
		sdCfg := stackdriver.DefaultConfig(e.ProjectID)
		sdCfg.CredentialsPath = e.CredentialsPath
		sdCfg.DefaultResource = stackdriver.Resource{
			Type: e.DefaultResource.Type, Labels: e.DefaultResource.Labels,
		}
		if e.Retries > 0 {
			sdCfg.Retries = e.Retries
		}
		if e.BatchSize > 0 {
			sdCfg.BatchSize = e.BatchSize
		}
		if e.PeriodInSecs > 0 {
			sdCfg.Period = time.Duration(e.PeriodInSecs) * time.Second
		}
		if len(e.Mappings) > 0 {
			sdCfg.ResourceMappings = make(map[string]stackdriver.Resource, len(e.Mappings))
			for _, m := range e.Mappings {
				sdCfg.ResourceMappings[m.MetricType] = stackdriver.Resource{
					Type: m.Resource.Type, Labels: m.Resource.Labels,
				}
			}
		}
		cfg.RegisterSink(e.Name, beacon.DefaultSinkConfig(), stackdriver.New(sdCfg))
	default:
		return fmt.Errorf("Unknown sink '%s'", kind)
	}
	return nil
}

func decodeTransformer(cfg *beacon.Configuration, meta *toml.MetaData, kind string, prim toml.Primitive) error {
	switch kind {
	case "tags":
		var raw map[string]any
		if err := meta.PrimitiveDecode(prim, &raw); err != nil {
			return fmt.Errorf("config: decode transformer 'tags': %w", err)
		}
		values := make(map[string]string, len(raw))
		for k, v := range raw {
			if k == "name" {
				continue
			}
			values[k] = fmt.Sprintf("%v", v)
		}
		cfg.RegisterTransformer("tags", transformer.NewTags(values))
	default:
		return fmt.Errorf("Unknown transformer '%s'", kind)
	}
	return nil
}

var envRegex = regexp.MustCompile(`\${(\w+)(?::-([^}]*))?}`)

// SubstituteEnvVars expands ${VAR} and ${VAR:-default} references against
// the process environment.
func SubstituteEnvVars(input string) string {
	return envRegex.ReplaceAllStringFunc(input, func(m string) string {
		matches := envRegex.FindStringSubmatch(m)
		if len(matches) < 2 {
			return m
		}
		envVar := matches[1]
		if val, ok := os.LookupEnv(envVar); ok {
			return val
		}
		if len(matches) > 2 && strings.Contains(m, ":-") {
			return matches[2]
		}
		return m
	})
}
