package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// TomlKeywords holds named keyword lists, e.g. [keywords] artisans = ["gmk", ...]
type TomlKeywords map[string][]string

// TomlConfig represents the optional configuration file. Keyword groups are
// merged into the keyword set supplied via the environment.
type TomlConfig struct {
	Keywords TomlKeywords `toml:"keywords"`
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config TomlConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

// AllKeywords flattens every group into one list, in no particular order.
func (c *TomlConfig) AllKeywords() []string {
	var keywords []string
	for _, group := range c.Keywords {
		keywords = append(keywords, group...)
	}
	return keywords
}
