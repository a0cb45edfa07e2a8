// Package services holds the domain operations behind the HTTP API, the
// worker and the management commands.
package services

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"go-echo-foodgram/internal/logging"
	"go-echo-foodgram/internal/models"
	"go-echo-foodgram/internal/telemetry"
)

var (
	tracer = otel.Tracer(telemetry.ScopeName)
	meter  = otel.Meter(telemetry.ScopeName)
)

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	UserID uint
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

func (a Actor) canModify(authorID uint) bool {
	return a.IsAdmin() || a.UserID == authorID
}

func newCounter(name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		logging.Logger().Error().Err(err).Str("counter", name).Msg("failed to create counter")
		return nil
	}
	return counter
}
