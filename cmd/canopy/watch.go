package main

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// intervalSetter is the part of the engine a config reload touches.
type intervalSetter interface {
	SetRefreshInterval(d time.Duration) error
}

// watchConfig re-applies refresh-interval whenever the config file changes.
// Nothing is watched when no config file exists.
func watchConfig(v *viper.Viper, engine intervalSetter, logger *zap.Logger) {
	if v == nil || configFileUsed(v) == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		applyConfigChange(v, engine, logger, e)
	})
	v.WatchConfig()
}

func applyConfigChange(v *viper.Viper, engine intervalSetter, logger *zap.Logger, e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	d := v.GetDuration("refresh-interval")
	if err := engine.SetRefreshInterval(d); err != nil {
		logger.Warn("ignoring refresh-interval from config", zap.String("file", e.Name), zap.Error(err))
		return
	}
	logger.Info("config reloaded", zap.String("file", e.Name), zap.Duration("refresh-interval", d))
}
