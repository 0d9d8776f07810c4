// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/evaluator/lib/sealed"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "EE_CONFIG"

// Config is the full configuration of an evaluator process.
type Config struct {
	// Evaluator configures the server and its lifecycle.
	Evaluator EvaluatorConfig `yaml:"evaluator"`

	// Logging configures the process logger.
	Logging LoggingConfig `yaml:"logging"`

	// Archive configures the snapshot written when a run ends.
	Archive ArchiveConfig `yaml:"archive"`

	// Journal configures the record of outbound messages.
	Journal JournalConfig `yaml:"journal"`
}

// EvaluatorConfig configures the evaluator server.
type EvaluatorConfig struct {
	// ID names the evaluator in the source attribute of every message
	// it sends. Empty means a random UUID.
	ID string `yaml:"id"`

	// Host is the interface to listen on.
	// Default: 127.0.0.1
	Host string `yaml:"host"`

	// Port is the TCP port to listen on. 0 lets the OS choose.
	Port int `yaml:"port"`

	// MaxQueue bounds the inbound event queue shared by all
	// connections. Readers block when it is full.
	// Default: 500
	MaxQueue int `yaml:"max_queue"`

	// MaxMessageSize bounds one inbound websocket message in bytes.
	// Default: 67108864 (64 MiB)
	MaxMessageSize int `yaml:"max_message_size"`

	// DrainTimeout is how long a stopping evaluator waits for
	// dispatchers to disconnect before sending TERMINATED.
	// Default: 10s
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// WriteTimeout bounds one websocket write to an observer.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ClientBuffer is the number of outbound messages queued per
	// observer. An observer whose queue fills is disconnected, even one
	// that is reading but cannot keep up with a burst; size it for the
	// largest burst of updates expected.
	// Default: 1024
	ClientBuffer int `yaml:"client_buffer"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is auto, text or json. Auto picks text on a terminal and
	// JSON otherwise.
	// Default: auto
	Format string `yaml:"format"`
}

// ArchiveConfig configures the end-of-run snapshot archive.
type ArchiveConfig struct {
	// Path is where the archive is written. Empty disables archiving.
	// ${VAR} and ${VAR:-default} are expanded from the environment.
	Path string `yaml:"path"`

	// Compression is none, lz4 or zstd.
	// Default: zstd
	Compression string `yaml:"compression"`

	// Recipients are age public keys (age1...). When any are set the
	// archive is sealed to them and only their identities can read it.
	Recipients []string `yaml:"recipients"`
}

// JournalConfig configures the SQLite message journal.
type JournalConfig struct {
	// Path is the journal database. Empty disables the journal. Runs
	// append to an existing file. Expanded like archive.path.
	Path string `yaml:"path"`

	// Buffer is the number of messages queued for the journal writer
	// before messages are dropped.
	// Default: 4096
	Buffer int `yaml:"buffer"`
}

// Default returns the configuration used before any file is applied.
func Default() *Config {
	return &Config{
		Evaluator: EvaluatorConfig{
			Host:           "127.0.0.1",
			Port:           0,
			MaxQueue:       500,
			MaxMessageSize: 64 << 20,
			DrainTimeout:   10 * time.Second,
			WriteTimeout:   10 * time.Second,
			ClientBuffer:   1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Archive: ArchiveConfig{
			Compression: "zstd",
		},
		Journal: JournalConfig{
			Buffer: 4096,
		},
	}
}

// Resolve picks the config file: the explicit path if given, else
// $EE_CONFIG. With neither, it returns the defaults; the evaluator runs
// fine without a file.
func Resolve(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv(EnvironmentVariable)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile overlays the YAML file at path onto the defaults. Unknown
// keys are an error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Parse overlays YAML text onto the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	config := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	config.Archive.Path = expandVariables(config.Archive.Path)
	config.Journal.Path = expandVariables(config.Journal.Path)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Evaluator.Host == "" {
		errs = append(errs, errors.New("evaluator.host is required"))
	}
	if c.Evaluator.Port < 0 || c.Evaluator.Port > 65535 {
		errs = append(errs, fmt.Errorf("evaluator.port %d out of range", c.Evaluator.Port))
	}
	if c.Evaluator.MaxQueue <= 0 {
		errs = append(errs, errors.New("evaluator.max_queue must be positive"))
	}
	if c.Evaluator.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("evaluator.max_message_size must be positive"))
	}
	if c.Evaluator.DrainTimeout <= 0 {
		errs = append(errs, errors.New("evaluator.drain_timeout must be positive"))
	}
	if c.Evaluator.WriteTimeout <= 0 {
		errs = append(errs, errors.New("evaluator.write_timeout must be positive"))
	}
	if c.Evaluator.ClientBuffer <= 0 {
		errs = append(errs, errors.New("evaluator.client_buffer must be positive"))
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	formats := []string{"auto", "text", "json"}
	if !slices.Contains(formats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", formats))
	}

	compressions := []string{"none", "lz4", "zstd"}
	if !slices.Contains(compressions, c.Archive.Compression) {
		errs = append(errs, fmt.Errorf("archive.compression must be one of: %v", compressions))
	}
	for index, recipient := range c.Archive.Recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			errs = append(errs, fmt.Errorf("archive.recipients[%d]: %w", index, err))
		}
	}
	if c.Journal.Buffer <= 0 {
		errs = append(errs, errors.New("journal.buffer must be positive"))
	}

	return errors.Join(errs...)
}

// SlogLevel converts the configured level name.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level %q: want debug, info, warn or error", l.Level)
	}
	return level, nil
}

var variablePattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVariables expands ${VAR} and ${VAR:-default} from the
// environment.
func expandVariables(s string) string {
	return variablePattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := variablePattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}
