package nlp

import (
	"fmt"
	"log/slog"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoadConfigFile reads a JSON keyword config from path.
func LoadConfigFile(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return cfg, nil
}

// WatchConfigFile calls onChange whenever the file at path is modified.
// It returns a stop function.
func WatchConfigFile(path string, onChange func(), logger *slog.Logger) (func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fp := file.Provider(path)
	err := fp.Watch(func(_ interface{}, err error) {
		if err != nil {
			logger.Warn("nlp config watch error", "path", path, "error", err)
			return
		}
		logger.Info("nlp config file changed", "path", path)
		onChange()
	})
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}
	return fp.Unwatch, nil
}
