// Package metrics exposes pipeline-stage counters for a canforge run:
// validation issues, codegen runs, gate outcomes, and roundtrip campaign
// loops/mismatches.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/canforge/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters and gauges for each pipeline stage.
var (
	ValidationIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_issues_total",
		Help: "Total validation issues found, by category.",
	}, []string{"category"})
	CodegenRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codegen_runs_total",
		Help: "Total codegen.Generate invocations.",
	})
	CodegenFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codegen_failures_total",
		Help: "Total codegen.Generate invocations that returned a CodegenError.",
	})
	GatePass = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gate_pass_total",
		Help: "Total codegen gate runs that passed all steps.",
	})
	GateFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_failures_total",
		Help: "Total codegen gate failures, by step kind.",
	}, []string{"kind"})
	CampaignLoops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campaign_loops_total",
		Help: "Total roundtrip verifier loops executed across all campaigns.",
	})
	CampaignMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_mismatches_total",
		Help: "Total roundtrip verifier failures, by failure kind.",
	}, []string{"kind"})
	CampaignsRun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campaigns_run_total",
		Help: "Total roundtrip verification campaigns started.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters, cheap to read for a terminal summary line
// without touching the Prometheus registry.
var (
	localValidationIssues   uint64
	localCodegenRuns        uint64
	localCodegenFailures    uint64
	localGatePass           uint64
	localGateFailures       uint64
	localCampaignLoops      uint64
	localCampaignMismatches uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	ValidationIssues   uint64
	CodegenRuns        uint64
	CodegenFailures    uint64
	GatePass           uint64
	GateFailures       uint64
	CampaignLoops      uint64
	CampaignMismatches uint64
}

func Snap() Snapshot {
	return Snapshot{
		ValidationIssues:   atomic.LoadUint64(&localValidationIssues),
		CodegenRuns:        atomic.LoadUint64(&localCodegenRuns),
		CodegenFailures:    atomic.LoadUint64(&localCodegenFailures),
		GatePass:           atomic.LoadUint64(&localGatePass),
		GateFailures:       atomic.LoadUint64(&localGateFailures),
		CampaignLoops:      atomic.LoadUint64(&localCampaignLoops),
		CampaignMismatches: atomic.LoadUint64(&localCampaignMismatches),
	}
}

// IncValidationIssue records one validation issue of the given category.
func IncValidationIssue(category string) {
	ValidationIssues.WithLabelValues(category).Inc()
	atomic.AddUint64(&localValidationIssues, 1)
}

// IncCodegenRun records one codegen.Generate call, pass or fail.
func IncCodegenRun(ok bool) {
	CodegenRuns.Inc()
	atomic.AddUint64(&localCodegenRuns, 1)
	if !ok {
		CodegenFailures.Inc()
		atomic.AddUint64(&localCodegenFailures, 1)
	}
}

// IncGateResult records one gate.Run outcome; failKind is ignored when ok.
func IncGateResult(ok bool, failKind string) {
	if ok {
		GatePass.Inc()
		atomic.AddUint64(&localGatePass, 1)
		return
	}
	GateFailures.WithLabelValues(failKind).Inc()
	atomic.AddUint64(&localGateFailures, 1)
}

// IncCampaignStarted records the start of one roundtrip campaign.
func IncCampaignStarted() { CampaignsRun.Inc() }

// AddCampaignLoops records n loops executed within a campaign.
func AddCampaignLoops(n int) {
	CampaignLoops.Add(float64(n))
	atomic.AddUint64(&localCampaignLoops, uint64(n))
}

// IncCampaignMismatch records one roundtrip failure of the given kind.
func IncCampaignMismatch(kind string) {
	CampaignMismatches.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localCampaignMismatches, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
