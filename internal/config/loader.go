package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: target.dsn is read from
// FIFOEXPORT_TARGET_DSN.
const EnvPrefix = "FIFOEXPORT"

// Loader reads job files.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a loader with environment overrides enabled.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load reads path (YAML or JSON by extension), applies defaults and
// environment overrides, and expands ${VAR} references in string values.
// It does not validate; see ValidateJob.
func (l *Loader) Load(path string) (*Job, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yml", ".yaml":
			l.v.SetConfigType("yaml")
		case ".json":
			l.v.SetConfigType("json")
		}
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for _, key := range l.v.AllKeys() {
		if s, ok := l.v.Get(key).(string); ok && strings.Contains(s, "${") {
			l.v.Set(key, os.ExpandEnv(s))
		}
	}

	var job Job
	if err := l.v.Unmarshal(&job); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if job.Format.Options == nil {
		job.Format.Options = Options{}
	}
	if job.Target.Options == nil {
		job.Target.Options = Options{}
	}
	return &job, nil
}

// Set overrides a key after loading defaults, e.g. from a CLI flag.
func (l *Loader) Set(key string, value any) { l.v.Set(key, value) }

func (l *Loader) setDefaults() {
	l.v.SetDefault("job", "fifoexport")

	l.v.SetDefault("source.paths", []string{})
	l.v.SetDefault("source.encoding", "")
	l.v.SetDefault("source.normalize", "")
	l.v.SetDefault("source.decompress", "auto")
	l.v.SetDefault("source.http.timeout", "60s")
	l.v.SetDefault("source.http.retry_max", 4)
	l.v.SetDefault("source.http.insecure_skip_verify", false)
	l.v.SetDefault("source.s3.region", "")
	l.v.SetDefault("source.s3.endpoint", "")
	l.v.SetDefault("source.s3.use_path_style", false)
	l.v.SetDefault("source.gcs.credentials_file", "")
	l.v.SetDefault("source.gcs.endpoint", "")
	l.v.SetDefault("source.azure.account_url", "")
	l.v.SetDefault("source.azure.connection_string", "")

	l.v.SetDefault("format.kind", "csv")

	l.v.SetDefault("target.kind", "netezza")
	l.v.SetDefault("target.dsn", "")
	l.v.SetDefault("target.table", "")
	l.v.SetDefault("target.columns", []string{})

	l.v.SetDefault("delimiters.field", ",")
	l.v.SetDefault("delimiters.record", "\n")
	l.v.SetDefault("delimiters.enclose", "")
	l.v.SetDefault("delimiters.escape", "\\")
	l.v.SetDefault("delimiters.enclose_required", false)

	l.v.SetDefault("transform.on_reject", "fail")
	l.v.SetDefault("transform.trim", false)
	l.v.SetDefault("transform.empty_as_null", false)

	l.v.SetDefault("runtime.work_dir", filepath.Join(os.TempDir(), "fifoexport"))
	l.v.SetDefault("runtime.pipe_name", "")
	l.v.SetDefault("runtime.parallel", 1)
	l.v.SetDefault("runtime.shutdown_grace", "30s")
	l.v.SetDefault("runtime.progress_every", 0)

	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stderr")
	l.v.SetDefault("observability.metrics.backend", "none")
	l.v.SetDefault("observability.metrics.pushgateway_url", "")
	l.v.SetDefault("observability.metrics.datadog_addr", "")
}
