package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/tubepulse/accounts/internal/flagx"
)

const envPrefix = "TUBEPULSE"

// parseFile overlays the config file named by -c/-config (yaml, json or
// toml, by extension) and TUBEPULSE_<KEY> environment variables onto cfg.
// Environment wins over the file. Keys are the mapstructure tags of Config.
func parseFile(cfg *Config, args []string) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	// Every key needs a default for AutomaticEnv to reach it during Unmarshal.
	defaults := map[string]any{}
	if err := mapstructure.Decode(*cfg, &defaults); err != nil {
		return fmt.Errorf("collect config defaults: %w", err)
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path := flagx.ConfigFileFlag(args); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}
