package saga

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage outcome labels.
const (
	outcomeAdvanced = "advanced" // stage ran, saga moved forward
	outcomeFinished = "finished" // stage ran, saga reached FINISH
	outcomeFailed   = "failed"   // stage ran, saga reached FAILED
	outcomeSkipped  = "skipped"  // duplicate or stale message fenced out
	outcomeAborted  = "aborted"  // unprocessable message (e.g. unknown saga)
	outcomeError    = "error"    // infrastructure error, will be retried
)

var stageExecutions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payment_stage_executions_total",
		Help: "Stage handler executions by stage and outcome",
	},
	[]string{"stage", "outcome"},
)

func observeStage(stage, outcome string) {
	stageExecutions.WithLabelValues(stage, outcome).Inc()
}
