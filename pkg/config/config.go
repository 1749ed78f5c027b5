// Package config handles loading and saving the memprobe configuration
// file.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".memprobe"
	configFile string = "config.yml"
)

// Config defines all configuration options available to be set through the
// config file.
type Config struct {
	// Command aliases for the terminal.
	Aliases map[string][]string `yaml:"aliases"`

	// ListMatches is the number of matches the terminal "list" command
	// prints by default.
	ListMatches *int `yaml:"list-matches,omitempty"`

	// ScanWorkers overrides the number of parallel workers used when
	// scanning memory. Zero or absent means one worker per CPU.
	ScanWorkers *int `yaml:"scan-workers,omitempty"`

	// MaxStoredMatches caps how many matches are retained per scan id.
	// Zero or absent means unlimited, which is the historical behavior.
	// The reported found count is never capped.
	MaxStoredMatches *int `yaml:"max-stored-matches,omitempty"`
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.\n", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.\n", err)
		return &Config{}
	}

	data, err := os.ReadFile(fullConfigFile)
	if err != nil {
		if err = writeDefaultConfig(fullConfigFile); err != nil {
			fmt.Printf("Error creating default config file: %v\n", err)
		}
		return &Config{}
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		fmt.Printf("Unable to decode config file: %v.\n", err)
		return &Config{}
	}

	return &c
}

// SaveConfig will marshal and save the config struct to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	return os.WriteFile(fullConfigFile, out, 0644)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	usr, err := user.Current()
	if err != nil {
		return "", err
	}
	return path.Join(usr.HomeDir, configDir, file), nil
}

func createConfigPath() error {
	confDir, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(confDir, 0700)
}

func writeDefaultConfig(path string) error {
	return os.WriteFile(path, []byte(`# Configuration file for the memprobe terminal.

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Number of matches printed by the "list" command.
# list-matches: 32

# Number of parallel scan workers. Defaults to one per CPU.
# scan-workers: 0

# Cap on matches retained per scan id, 0 means unlimited.
# max-stored-matches: 0
`), 0644)
}
