package tracing

import (
	"strings"
	"time"

	"github.com/CzarCx/qr-brain/config"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const flushTimeout = 10 * time.Second

// Tracer reports workflow operations to the APM agent
type Tracer interface {
	// Operation opens a transaction named name. The returned func closes it,
	// noticing err when it is not nil.
	Operation(name string) func(err error)
	// Application is the agent handed to the gin integration, nil when disabled
	Application() *newrelic.Application
	Close()
}

// agent is a Tracer backed by New Relic. A nil app disables every call.
type agent struct {
	app *newrelic.Application
}

// NewTracer connects to New Relic. Without a license key tracing is disabled.
func NewTracer(cfg config.TracingConfig) (Tracer, error) {
	if cfg.LicenseKey == "" {
		log.Warn().Msg("New Relic license key not provided, tracing disabled")
		return Noop(), nil
	}

	opts := []newrelic.ConfigOption{
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(cfg.DistribTracing),
		newrelic.ConfigAppLogForwardingEnabled(cfg.LogEnabled),
	}
	if strings.EqualFold(cfg.LogLevel, "debug") {
		opts = append(opts, newrelic.ConfigDebugLogger(log.Logger))
	}

	app, err := newrelic.NewApplication(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize New Relic")
	}

	log.Info().Str("app", cfg.AppName).Msg("New Relic tracing enabled")
	return &agent{app: app}, nil
}

// Noop returns a tracer that records nothing
func Noop() Tracer {
	return &agent{}
}

func (a *agent) Operation(name string) func(err error) {
	if a.app == nil {
		return func(error) {}
	}
	txn := a.app.StartTransaction(name)
	return func(err error) {
		if err != nil {
			txn.NoticeError(err)
		}
		txn.End()
	}
}

func (a *agent) Application() *newrelic.Application {
	return a.app
}

// Close flushes pending transactions
func (a *agent) Close() {
	if a.app == nil {
		return
	}
	a.app.Shutdown(flushTimeout)
	log.Info().Msg("New Relic tracer shut down")
}
