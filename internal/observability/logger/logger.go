// Package logger centraliza el logging estructurado del servicio (zap).
//
// Uso típico:
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//	log := logger.Named("magiclink")
//
// Regla del servicio: nunca se loguean API keys, tokens crudos ni bodies de
// webhooks. Para emails usar util.MaskEmail.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init inicializa el logger singleton. Idempotente: sólo la primera llamada
// tiene efecto. Llamar al inicio de main.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L retorna el logger singleton. Si Init no fue llamado, crea uno por defecto
// (dev, info) para no romper tests ni tooling.
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// Named retorna un logger con nombre de componente.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// With retorna un logger con campos persistentes (ej: tenant_id en un service).
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushea buffers pendientes. Defer en main.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}
