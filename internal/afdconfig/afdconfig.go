// Package afdconfig loads the daemon's two configuration layers: the
// line-oriented AFD_CONFIG key/value file under {work_dir}/etc (§6), and an
// optional YAML policy overlay for settings that don't fit the flat
// key/value model (host pause thresholds, retrieval policy defaults).
package afdconfig

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/afdist/afd/internal/afderr"
)

// Config holds the recognised AFD_CONFIG keys plus the optional overlay.
type Config struct {
	TCPPort            int
	MaxCopiedFiles     int
	DefaultAgeLimit    time.Duration
	AMGDirRescanTime   time.Duration
	InGlobalFilesystem bool
	InitAFDPriority    int

	Policy Policy

	raw map[string]string
}

// Policy is the YAML overlay: settings better expressed as structured data
// than flat key/value pairs.
type Policy struct {
	HostDefaults struct {
		MaxErrors int           `yaml:"max_errors"`
		WarnTime  time.Duration `yaml:"warn_time"`
	} `yaml:"host_defaults"`
	DirDefaults struct {
		IgnoreSize     int64 `yaml:"ignore_size"`
		IgnoreSizeSign string `yaml:"ignore_size_sign"`
	} `yaml:"dir_defaults"`
}

// defaults mirrors the original AFD's compiled-in defaults (§6).
func defaults() Config {
	return Config{
		TCPPort:            4024,
		MaxCopiedFiles:     1000,
		DefaultAgeLimit:    0,
		AMGDirRescanTime:   5 * time.Second,
		InGlobalFilesystem: false,
		InitAFDPriority:    0,
		raw:                map[string]string{},
	}
}

// Load reads {work_dir}/etc/AFD_CONFIG and, if present, {work_dir}/etc/afd_policy.yaml.
func Load(workDir string) (*Config, error) {
	cfg := defaults()

	cfgPath := filepath.Join(workDir, "etc", "AFD_CONFIG")
	if err := cfg.loadKeyValue(cfgPath); err != nil {
		return nil, err
	}

	policyPath := filepath.Join(workDir, "etc", "afd_policy.yaml")
	if data, err := os.ReadFile(policyPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg.Policy); err != nil {
			return nil, afderr.New(afderr.Configuration, policyPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, afderr.New(afderr.Filesystem, policyPath, err)
	}

	return &cfg, nil
}

func (c *Config) loadKeyValue(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return afderr.New(afderr.Filesystem, path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		key, value := fields[0], strings.Join(fields[1:], " ")
		c.raw[key] = value
		if err := c.applyKey(key, value); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return afderr.New(afderr.Filesystem, path, err)
	}
	return nil
}

func (c *Config) applyKey(key, value string) error {
	switch key {
	case "AFD_TCP_PORT":
		n, err := strconv.Atoi(value)
		if err != nil {
			return afderr.New(afderr.Configuration, key, err)
		}
		c.TCPPort = n
	case "MAX_COPIED_FILES":
		n, err := strconv.Atoi(value)
		if err != nil {
			return afderr.New(afderr.Configuration, key, err)
		}
		c.MaxCopiedFiles = n
	case "DEFAULT_AGE_LIMIT":
		n, err := strconv.Atoi(value)
		if err != nil {
			return afderr.New(afderr.Configuration, key, err)
		}
		c.DefaultAgeLimit = time.Duration(n) * time.Second
	case "AMG_DIR_RESCAN_TIME":
		n, err := strconv.Atoi(value)
		if err != nil {
			return afderr.New(afderr.Configuration, key, err)
		}
		c.AMGDirRescanTime = time.Duration(n) * time.Second
	case "IN_GLOBAL_FILESYSTEM":
		c.InGlobalFilesystem = value == "yes" || value == "1" || value == "true"
	case "INIT_AFD_PRIORITY":
		n, err := strconv.Atoi(value)
		if err != nil {
			return afderr.New(afderr.Configuration, key, err)
		}
		c.InitAFDPriority = n
	}
	// Unrecognised keys are kept in raw for forward compatibility but
	// otherwise ignored, matching the original's tolerant parser.
	return nil
}

// Raw returns a key's literal string value as read from AFD_CONFIG, for
// callers that need a setting this package doesn't model structurally.
func (c *Config) Raw(key string) (string, bool) {
	v, ok := c.raw[key]
	return v, ok
}
