// Package otelmetrics instruments the orchestrator's dispatch tick,
// backend calls, executor commands, and RL scoring with OpenTelemetry
// metrics, following this codebase's instrument-per-field Metrics struct
// and constructor-with-error-aggregation shape (spec §4.12).
package otelmetrics

import "go.opentelemetry.io/otel/metric"

// Metrics holds every instrument the orchestrator and its collaborators
// record against.
type Metrics struct {
	DispatchTickDuration metric.Float64Histogram
	PendingQueueDepth    metric.Int64UpDownCounter
	WorkingAgents        metric.Int64UpDownCounter
	BackendCallDuration  metric.Float64Histogram
	BackendTokens        metric.Int64Counter
	BackendErrors        metric.Int64Counter
	ExecutorCmdDuration  metric.Float64Histogram
	ExecutorCmdErrors    metric.Int64Counter
	RLScore              metric.Int64Histogram
	TasksDispatched       metric.Int64Counter
}

// New creates every metric instrument from meter, aggregating the first
// error encountered the way this codebase's NewMetrics constructors do.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.DispatchTickDuration, err = meter.Float64Histogram("agentos.dispatch.tick.duration",
		metric.WithDescription("Dispatch tick wall-clock duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.PendingQueueDepth, err = meter.Int64UpDownCounter("agentos.dispatch.queue.depth",
		metric.WithDescription("Number of tasks currently pending"),
	)
	if err != nil {
		return nil, err
	}

	m.WorkingAgents, err = meter.Int64UpDownCounter("agentos.dispatch.agents.working",
		metric.WithDescription("Number of agents currently working a task"),
	)
	if err != nil {
		return nil, err
	}

	m.BackendCallDuration, err = meter.Float64Histogram("agentos.backend.call.duration",
		metric.WithDescription("Backend adapter call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.BackendTokens, err = meter.Int64Counter("agentos.backend.tokens",
		metric.WithDescription("Tokens consumed per backend call"),
	)
	if err != nil {
		return nil, err
	}

	m.BackendErrors, err = meter.Int64Counter("agentos.backend.errors",
		metric.WithDescription("Backend call errors by kind"),
	)
	if err != nil {
		return nil, err
	}

	m.ExecutorCmdDuration, err = meter.Float64Histogram("agentos.executor.command.duration",
		metric.WithDescription("Workspace executor command duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ExecutorCmdErrors, err = meter.Int64Counter("agentos.executor.command.errors",
		metric.WithDescription("Workspace executor command failure count"),
	)
	if err != nil {
		return nil, err
	}

	m.RLScore, err = meter.Int64Histogram("agentos.rl.score",
		metric.WithDescription("RL scorer's per-task score distribution"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksDispatched, err = meter.Int64Counter("agentos.dispatch.tasks",
		metric.WithDescription("Total tasks dispatched to an agent"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
