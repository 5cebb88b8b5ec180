package taskd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/taskd/model"
	"github.com/viant/taskd/service/launcher"
	"github.com/viant/taskd/service/ledger"
	"github.com/viant/taskd/service/messaging"
	"github.com/viant/taskd/service/secret"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the daemon configuration. It can
// be populated from YAML or JSON; sections left out keep their defaults.
type Config struct {
	Node     string          `json:"node" yaml:"node"`
	Storage  StorageConfig   `json:"storage" yaml:"storage"`
	Launcher launcher.Config `json:"launcher" yaml:"launcher"`
	Process  ProcessConfig   `json:"process" yaml:"process"`
	Ledger   LedgerConfig    `json:"ledger" yaml:"ledger"`
	Lister   ListerConfig    `json:"lister" yaml:"lister"`
	Events   EventsConfig    `json:"events" yaml:"events"`
	Tracing  TracingConfig   `json:"tracing" yaml:"tracing"`
	Log      LogConfig       `json:"log" yaml:"log"`
}

// StorageConfig locates persistent state. Any afs URL is accepted for the
// artifact and ledger locations; an empty ledger URL keeps jobs in memory.
type StorageConfig struct {
	ArtifactsURL string `json:"artifactsURL" yaml:"artifactsURL"`
	LedgerURL    string `json:"ledgerURL" yaml:"ledgerURL"`
	WorkDir      string `json:"workDir" yaml:"workDir"`
	LogsDir      string `json:"logsDir" yaml:"logsDir"`
}

// ProcessConfig controls how job processes are started.
type ProcessConfig struct {
	// DefaultCommand runs tasks whose manifest entry has no command; the
	// task name is appended as the last argument.
	DefaultCommand []string          `json:"defaultCommand" yaml:"defaultCommand"`
	KeepWorkDir    bool              `json:"keepWorkDir" yaml:"keepWorkDir"`
	Env            map[string]string `json:"env" yaml:"env"`
	// Secrets are encrypted environment values revealed at startup.
	Secrets map[string]*secret.Ref `json:"secrets" yaml:"secrets"`
}

// LedgerConfig controls job retention.
type LedgerConfig struct {
	FinishedToKeep int `json:"finishedToKeep" yaml:"finishedToKeep"`
}

// ListerConfig selects the task lister. An empty command uses the built-in
// bundle manifest reader.
type ListerConfig struct {
	Command string        `json:"command" yaml:"command"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	TempURL string        `json:"tempURL" yaml:"tempURL"`
}

// EventsConfig enables the job transition feed. An empty vendor disables it.
type EventsConfig struct {
	Vendor     messaging.Vendor `json:"vendor" yaml:"vendor"`
	BaseURL    string           `json:"baseURL" yaml:"baseURL"`
	MaxRetries int              `json:"maxRetries" yaml:"maxRetries"`
	BufferSize int              `json:"bufferSize" yaml:"bufferSize"`
}

// TracingConfig enables OpenTelemetry tracing to stdout or a file.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`
	OutputFile  string `json:"outputFile" yaml:"outputFile"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns a Config rooted at baseDir.
func DefaultConfig(baseDir string) *Config {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "taskd")
	}
	node, err := os.Hostname()
	if err != nil || node == "" {
		node = "taskd"
	}
	return &Config{
		Node: node,
		Storage: StorageConfig{
			ArtifactsURL: filepath.Join(baseDir, "eggs"),
			WorkDir:      filepath.Join(baseDir, "work"),
			LogsDir:      filepath.Join(baseDir, "logs"),
		},
		Launcher: launcher.DefaultConfig(),
		Ledger:   LedgerConfig{FinishedToKeep: ledger.DefaultFinishedToKeep},
		Lister:   ListerConfig{Timeout: time.Minute},
		Tracing:  TracingConfig{ServiceName: "taskd"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Node == "" {
		errs = append(errs, fmt.Errorf("node name is required"))
	}
	if c.Storage.ArtifactsURL == "" {
		errs = append(errs, fmt.Errorf("storage.artifactsURL is required"))
	}
	if c.Storage.WorkDir == "" || c.Storage.LogsDir == "" {
		errs = append(errs, fmt.Errorf("storage.workDir and storage.logsDir are required"))
	}
	if err := c.Launcher.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("launcher: %w", err))
	}
	switch c.Events.Vendor {
	case "", messaging.VendorMemory:
	case messaging.VendorFs:
		if c.Events.BaseURL == "" {
			errs = append(errs, fmt.Errorf("events.baseURL is required for the %s vendor", c.Events.Vendor))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported events vendor: %s", c.Events.Vendor))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format: %s", c.Log.Format))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.Process.DefaultCommand {
		if name == "" {
			errs = append(errs, fmt.Errorf("process.defaultCommand must not contain empty arguments"))
			break
		}
	}
	for name, ref := range c.Process.Secrets {
		if ref == nil || ref.URL == "" {
			errs = append(errs, fmt.Errorf("process.secrets.%s: url is required", name))
		}
	}
	if c.Node != "" && model.ValidateIdentifier("node", c.Node) != nil {
		errs = append(errs, fmt.Errorf("invalid node name: %q", c.Node))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML (or JSON) document from URL on top of
// DefaultConfig. References of the form ${env.NAME} are replaced with the
// value of the NAME environment variable before decoding.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", URL, err)
	}
	ret := DefaultConfig("")
	if err = yaml.Unmarshal([]byte(expandEnv(string(data))), ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return ret, nil
}

func expandEnv(text string) string {
	return os.Expand(text, func(name string) string {
		if key, ok := strings.CutPrefix(name, "env."); ok {
			return os.Getenv(key)
		}
		return "${" + name + "}"
	})
}
