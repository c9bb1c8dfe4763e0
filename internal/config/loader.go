package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	appName     = "refundd"
	maxFileSize = 1 << 20
)

// Errors returned when the config file fails its checks. The file may carry
// the model API key and the booking client secret.
var (
	ErrOutsideConfigDir = errors.New("config file outside ~/.config/refundd and /etc/refundd")
	ErrFilePermissions  = errors.New("config file readable by group or others")
	ErrFileTooLarge     = errors.New("config file too large")
)

// sections lists the top-level keys environment variables may set.
var sections = map[string]bool{
	"server":    true,
	"triage":    true,
	"llm":       true,
	"policy":    true,
	"bookings":  true,
	"events":    true,
	"logging":   true,
	"telemetry": true,
}

// DefaultPath returns ~/.config/refundd/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName, "config.yaml"), nil
}

// Load reads DefaultPath and the environment.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile layers defaults, the YAML file at path and the environment,
// in increasing precedence, then validates the result. An empty path means
// DefaultPath. A missing file is not an error.
//
// Environment variables split on the first underscore into section and
// key, so SERVER_HTTP_PORT sets server.http_port and EVENTS_KAFKA_BROKERS
// (comma separated) sets events.kafka_brokers. Variables outside a known
// section are ignored.
func LoadWithFile(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	k := koanf.New(".")
	content, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	normalize(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// readConfigFile returns the file's content, or nil when it does not
// exist. Checks run on the opened descriptor so the file cannot be swapped
// between check and read.
func readConfigFile(path string) ([]byte, error) {
	if err := checkConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := checkConfigFile(info); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// One byte past the limit catches files that grew after Stat.
	content, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(content) > maxFileSize {
		return nil, fmt.Errorf("%s: %w", path, ErrFileTooLarge)
	}
	return content, nil
}

func configDirs() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("locating home directory: %w", err)
	}
	return []string{
		filepath.Join(home, ".config", appName),
		filepath.Join("/etc", appName),
	}, nil
}

// checkConfigPath requires path, after resolving symlinks, to sit inside
// one of configDirs. Paths that do not exist yet are checked as written.
func checkConfigPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	dirs, err := configDirs()
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if within(dir, abs) {
			return nil
		}
		if resolved, err := filepath.EvalSymlinks(dir); err == nil && within(resolved, abs) {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", path, ErrOutsideConfigDir)
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func checkConfigFile(info fs.FileInfo) error {
	if info.Size() > maxFileSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, info.Size(), maxFileSize)
	}
	if runtime.GOOS == "windows" {
		return nil
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("%w: mode %v, want 0600 or 0400", ErrFilePermissions, perm)
	}
	return nil
}

// envKey maps SECTION_FIELD_NAME to section.field_name, or "" to skip.
func envKey(s string) string {
	section, key, ok := strings.Cut(strings.ToLower(s), "_")
	if !ok || key == "" || !sections[section] {
		return ""
	}
	return section + "." + key
}

// normalize cleans values that arrive as free text from env vars.
func normalize(cfg *Config) {
	cfg.Events.KafkaBrokers = splitList(cfg.Events.KafkaBrokers)
	cfg.Bookings.Scopes = splitList(cfg.Bookings.Scopes)
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.Events.Sink = strings.ToLower(strings.TrimSpace(cfg.Events.Sink))
	cfg.Telemetry.Protocol = strings.ToLower(strings.TrimSpace(cfg.Telemetry.Protocol))
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
