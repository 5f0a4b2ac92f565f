package config

import (
	"sync"

	"PPAdmin/logger"
	"PPAdmin/tools/errs"

	"github.com/knadh/koanf/providers/file"
	"go.uber.org/zap"
)

var (
	current   *Config
	currentMu sync.RWMutex
)

// Current returns the last configuration that loaded and validated.
func Current() *Config {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

func setCurrent(c *Config) {
	currentMu.Lock()
	current = c
	currentMu.Unlock()
}

// Watch reloads the config file whenever it changes and passes the result
// to onChange. A reload that fails keeps the previous config. Without a
// config file there is nothing to watch and stop is a no-op.
func Watch(onChange func(*Config)) (stop func() error, err error) {
	path := findConfigFile()
	if path == "" {
		return func() error { return nil }, nil
	}
	fp := file.Provider(path)
	err = fp.Watch(func(_ interface{}, werr error) {
		if werr != nil {
			logger.Warn("[Config] watch", zap.String("path", path), zap.Error(werr))
			return
		}
		cfg, lerr := Load()
		if lerr != nil {
			logger.Warn("[Config] reload rejected", zap.String("path", path), zap.Error(lerr))
			return
		}
		logger.Info("[Config] reloaded", zap.String("path", path))
		if onChange != nil {
			onChange(cfg)
		}
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "watch config file", "path", path)
	}
	return fp.Unwatch, nil
}
