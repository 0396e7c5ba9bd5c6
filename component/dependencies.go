package component

import (
	"log/slog"

	"github.com/Martenstenden/Data-Logger-sub001/metric"
	"github.com/Martenstenden/Data-Logger-sub001/natsclient"
)

// Dependencies provides the external dependencies components need. All
// fields are optional except where a component documents otherwise; nil
// MetricsRegistry disables metrics, nil Logger falls back to slog.Default.
type Dependencies struct {
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
