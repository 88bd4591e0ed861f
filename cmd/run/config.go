package run

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/saveenergy/playertester/pkg/scenario"
)

// ConfigFile is the optional YAML file at
// $XDG_CONFIG_HOME/playertester/config.yaml.
type ConfigFile struct {
	Timeout     string `yaml:"timeout,omitempty"`
	LowLatency  *bool  `yaml:"low_latency,omitempty"`
	FinishOn    string `yaml:"finish_on,omitempty"`
	Poll        string `yaml:"poll,omitempty"`
	Addr        string `yaml:"addr,omitempty"`
	Wait        string `yaml:"wait,omitempty"`
	DataDir     string `yaml:"data_dir,omitempty"`
	JSON        bool   `yaml:"json,omitempty"`
	Plain       bool   `yaml:"plain,omitempty"`
	NoColor     bool   `yaml:"no_color,omitempty"`
	NoPreflight bool   `yaml:"no_preflight,omitempty"`
}

func getConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "playertester", "config.yaml")
}

// loadConfigFile reads path, or the default location when path is empty. A
// missing default file is not an error; a missing explicit file is.
func loadConfigFile(path string) (*ConfigFile, error) {
	explicit := path != ""
	if !explicit {
		path = getConfigPath()
		if path == "" {
			return nil, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := validateConfigFile(&config); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return &config, nil
}

func validateConfigFile(config *ConfigFile) error {
	for name, val := range map[string]string{
		"timeout": config.Timeout,
		"poll":    config.Poll,
		"wait":    config.Wait,
	} {
		if val == "" {
			continue
		}
		if d, err := time.ParseDuration(val); err != nil || d < 0 {
			return fmt.Errorf("invalid %s: %q (must be a non-negative duration)", name, val)
		}
	}
	if config.FinishOn != "" {
		if _, err := scenario.ParseFinishPolicy(config.FinishOn); err != nil {
			return fmt.Errorf("invalid finish_on: %w", err)
		}
	}
	return nil
}

// mergeConfig layers defaults < config file < environment < flags.
func mergeConfig(flagConfig *Options, configFile *ConfigFile, flagsSet map[string]bool, stderr io.Writer) *Options {
	result := &Options{
		ManifestURL: flagConfig.ManifestURL,
		ConfigPath:  flagConfig.ConfigPath,
		Timeout:     defaultTimeout,
		LowLatency:  true,
		Wait:        defaultWait,
	}

	if configFile != nil {
		if d, err := time.ParseDuration(configFile.Timeout); err == nil {
			result.Timeout = d
		}
		if configFile.LowLatency != nil {
			result.LowLatency = *configFile.LowLatency
		}
		if configFile.FinishOn != "" {
			result.FinishOn = configFile.FinishOn
		}
		if d, err := time.ParseDuration(configFile.Poll); err == nil {
			result.Poll = d
		}
		if configFile.Addr != "" {
			result.Addr = configFile.Addr
		}
		if d, err := time.ParseDuration(configFile.Wait); err == nil {
			result.Wait = d
		}
		if configFile.DataDir != "" {
			result.DataDir = configFile.DataDir
		}
		result.JSON = configFile.JSON
		result.Plain = configFile.Plain
		result.NoColor = configFile.NoColor
		result.NoPreflight = configFile.NoPreflight
	}

	envDuration := func(name string, dst *time.Duration) {
		val := os.Getenv(name)
		if val == "" {
			return
		}
		d, err := time.ParseDuration(val)
		if err != nil || d < 0 {
			fmt.Fprintf(stderr, "playertester run: warning: invalid %s value '%s' (must be a duration), ignoring\n", name, val)
			return
		}
		*dst = d
	}
	envDuration("PT_TIMEOUT", &result.Timeout)
	envDuration("PT_POLL_INTERVAL", &result.Poll)
	envDuration("PT_PAGE_WAIT", &result.Wait)
	if val := os.Getenv("PT_LOW_LATENCY"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			result.LowLatency = b
		} else {
			fmt.Fprintf(stderr, "playertester run: warning: invalid PT_LOW_LATENCY value '%s' (must be true or false), ignoring\n", val)
		}
	}
	if val := os.Getenv("PT_FINISH_ON"); val != "" {
		result.FinishOn = val
	}
	if val := os.Getenv("PT_DATA_DIR"); val != "" {
		result.DataDir = val
	}
	if os.Getenv("NO_COLOR") != "" {
		result.NoColor = true
	}

	if flagsSet["timeout"] {
		result.Timeout = flagConfig.Timeout
	}
	if flagsSet["low-latency"] {
		result.LowLatency = flagConfig.LowLatency
	}
	if flagsSet["finish-on"] {
		result.FinishOn = flagConfig.FinishOn
	}
	if flagsSet["poll"] {
		result.Poll = flagConfig.Poll
	}
	if flagsSet["addr"] && flagConfig.Addr != "" {
		result.Addr = flagConfig.Addr
	}
	if flagsSet["wait"] {
		result.Wait = flagConfig.Wait
	}
	if flagsSet["data-dir"] && flagConfig.DataDir != "" {
		result.DataDir = flagConfig.DataDir
	}
	if flagsSet["json"] {
		result.JSON = flagConfig.JSON
	}
	if flagsSet["plain"] {
		result.Plain = flagConfig.Plain
	}
	if flagsSet["no-color"] {
		result.NoColor = flagConfig.NoColor
	}
	if flagsSet["no-preflight"] {
		result.NoPreflight = flagConfig.NoPreflight
	}

	return result
}
