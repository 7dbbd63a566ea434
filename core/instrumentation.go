package engine

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-sync/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	deliveredEnvelopes, _ = meter.Int64Counter("engine.delivered")
	queueWait, _          = meter.Float64Histogram("engine.queue_wait", metric.WithUnit("s"))
)
