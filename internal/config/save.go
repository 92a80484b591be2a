package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Save writes the config to the default location as TOML.
func Save(c *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(c, configPath)
}

func SaveFile(c *Config, configPath string) error {
	var buf bytes.Buffer
	buf.WriteString("# Verbatim configuration\n# Changes are applied without restarting the agent.\n\n")
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := configPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	if err := os.Rename(tmp, configPath); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}
