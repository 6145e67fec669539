package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar del servicio. Tener constructores evita typos en los nombres
// de campo y mantiene los dashboards consistentes.

// HTTP

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Negocio

// TenantID crea un campo para el ID del tenant.
func TenantID(v string) zap.Field { return zap.String("tenant_id", v) }

// TenantHost crea un campo para el hostname verificado del tenant.
func TenantHost(v string) zap.Field { return zap.String("tenant_host", v) }

// Subject crea un campo para el ID del end-user.
func Subject(v string) zap.Field { return zap.String("subject", v) }

// Provider crea un campo para el identity provider (google, github).
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Outcome crea un campo para el resultado de una transición o verificación.
// Se loguea la clasificación, nunca el material que falló.
func Outcome(v string) zap.Field { return zap.String("outcome", v) }

// Sistema

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

func String(k, v string) zap.Field { return zap.String(k, v) }
func Int(k string, v int) zap.Field { return zap.Int(k, v) }
