package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kstaniek/canforge/internal/codegen"
	"github.com/kstaniek/canforge/internal/config"
	"github.com/kstaniek/canforge/internal/gate"
	"github.com/kstaniek/canforge/internal/ir"
	"github.com/kstaniek/canforge/internal/logging"
	"github.com/kstaniek/canforge/internal/metrics"
	"github.com/kstaniek/canforge/internal/report"
	"github.com/kstaniek/canforge/internal/validate"
	"github.com/kstaniek/canforge/internal/verify"
)

func main() {
	cfg, showVersion, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if showVersion {
		fmt.Printf("canforge %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr).With("app", "canforge")
	logging.Set(l)

	if cfg.MetricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.MetricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}
	metrics.SetReadinessFunc(func() bool { return true })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, l); err != nil {
		l.Error("pipeline_failed", "error", err)
		os.Exit(1)
	}
}

// run wires the pipeline end to end: IR load -> Layer-0/Layer-1 validate
// -> codegen -> gate -> roundtrip verify -> reports. Each stage is fatal
// on failure, except the roundtrip campaign, which records per-loop
// failures according to cfg.FailPolicy and still produces a report.
func run(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	outputDir := filepath.Join(cfg.OutDir, "output")
	genDir := filepath.Join(cfg.OutDir, "gen")
	reportsDir := filepath.Join(cfg.OutDir, "raw_reports")
	for _, d := range []string{outputDir, genDir, reportsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}

	irLog := logging.Stage("ir")
	spec, err := loadSpec(cfg.IRPath)
	if err != nil {
		irLog.Error("ir_load_failed", "error", err)
		return err
	}
	irLog.Info("ir_loaded", "name", spec.Meta.Name, "messages", len(spec.Messages))

	if err := writeCanonicalIR(outputDir, spec); err != nil {
		return fmt.Errorf("write canonical ir: %w", err)
	}

	valLog := logging.Stage("validate")
	if err := validate.Validate(spec); err != nil {
		recordValidationMetrics(err)
		valLog.Error("validate_failed", "error", err)
		return err
	}
	valLog.Info("validate_ok")

	genLog := logging.Stage("codegen")
	art, err := codegen.Generate(spec)
	metrics.IncCodegenRun(err == nil)
	if err != nil {
		genLog.Error("codegen_failed", "error", err)
		return err
	}
	if err := writeArtifacts(genDir, art); err != nil {
		return fmt.Errorf("write artifacts: %w", err)
	}
	genLog.Info("codegen_ok", "header", art.HeaderName, "source", art.SourceName)

	gateLog := logging.Stage("gate")
	gateCfg := gate.Config{ToolchainHint: cfg.ToolchainHint, CompileTimeout: cfg.CompileTimeout}
	verdict, err := gate.Run(ctx, spec, art, genDir, gateCfg)
	metrics.IncGateResult(verdict.Pass, gateErrKind(err))
	if err != nil {
		gateLog.Error("gate_failed", "error", err, "steps", fmt.Sprintf("%+v", verdict.Steps))
		return err
	}
	gateLog.Info("gate_ok")

	harnessPath, err := gate.BuildHarness(ctx, art, genDir, gateCfg)
	if err != nil {
		gateLog.Error("harness_build_failed", "error", err)
		return err
	}

	verifyLog := logging.Stage("verify")
	binding, err := verify.StartNativeBinding(ctx, verify.CompiledArtifact{HarnessPath: harnessPath})
	if err != nil {
		verifyLog.Error("harness_start_failed", "error", err)
		return err
	}
	defer binding.Close()

	failPolicy := verify.ContinueOnFail
	if cfg.FailPolicy == "stop-on-fail" {
		failPolicy = verify.StopOnFail
	}
	campaign := verify.Campaign{MasterSeed: cfg.MasterSeed, Loops: cfg.Loops, FailPolicy: failPolicy}
	metrics.IncCampaignStarted()
	vr, err := verify.Run(ctx, spec, binding, campaign)
	metrics.AddCampaignLoops(len(vr.Outcomes))
	for _, o := range vr.Outcomes {
		if !o.Pass && o.Failure != nil {
			metrics.IncCampaignMismatch(string(o.Failure.Kind))
		}
	}
	if err != nil {
		verifyLog.Error("verify_run_error", "error", err)
		return err
	}
	verifyLog.Info("verify_done", "pass", vr.Passed(), "loops", len(vr.Outcomes), "stopped_early", vr.Stopped)

	if err := writeReports(reportsDir, genDir, cfg, spec, art, vr); err != nil {
		return err
	}

	snap := metrics.Snap()
	l.Info("metrics_snapshot",
		"validation_issues", snap.ValidationIssues,
		"codegen_runs", snap.CodegenRuns,
		"gate_pass", snap.GatePass,
		"gate_failures", snap.GateFailures,
		"campaign_loops", snap.CampaignLoops,
		"campaign_mismatches", snap.CampaignMismatches,
	)
	return nil
}

func loadSpec(path string) (ir.Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return ir.Spec{}, fmt.Errorf("open ir file: %w", err)
	}
	defer f.Close()
	return ir.Parse(f)
}

// writeCanonicalIR re-emits spec's canonical form as
// <out>/output/<name>.ir.yaml. This is the stable, round-trip-verified
// copy every later stage's report hashes against, independent of how the
// original --ir file happened to be formatted.
func writeCanonicalIR(outputDir string, spec ir.Spec) error {
	var buf bytes.Buffer
	if err := ir.Emit(&buf, spec); err != nil {
		return err
	}
	path := filepath.Join(outputDir, codegen.Sanitize(spec.Meta.Name)+".ir.yaml")
	return writeFileAtomic(path, buf.Bytes())
}

func writeArtifacts(genDir string, art codegen.Artifacts) error {
	files := []struct {
		name, src string
	}{
		{art.HeaderName, art.HeaderSrc},
		{art.SourceName, art.SourceSrc},
		{art.HarnessName, art.HarnessSrc},
	}
	for _, f := range files {
		if err := writeFileAtomic(filepath.Join(genDir, f.name), []byte(f.src)); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

// writeFileAtomic stages data in a sibling temp file and renames it into
// place, so a crash mid-write never leaves a partial file at path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func writeReports(reportsDir, genDir string, cfg *config.Config, spec ir.Spec, art codegen.Artifacts, vr verify.Report) error {
	ts := time.Now().UTC().Format("20060102T150405Z")

	var hashes []report.FileHash
	for _, name := range []string{art.HeaderName, art.SourceName, art.HarnessName} {
		h, err := report.HashFile(filepath.Join(genDir, name))
		if err != nil {
			return fmt.Errorf("hash artifact: %w", err)
		}
		hashes = append(hashes, report.FileHash{Name: name, SHA256: h})
	}

	in := report.Inputs{
		ToolVersion:    version,
		IRPath:         cfg.IRPath,
		ArtifactDir:    genDir,
		ArtifactHashes: hashes,
		Timestamp:      ts,
	}

	summary, err := report.BuildSummary(spec, in, vr)
	if err != nil {
		return fmt.Errorf("build summary report: %w", err)
	}
	summaryPath := filepath.Join(reportsDir, ts+"-raw.report.yaml")
	if err := writeReportFile(summaryPath, func(w io.Writer) error { return report.WriteSummary(w, summary) }); err != nil {
		return err
	}

	errReport, ok, err := report.BuildError(spec, in, vr)
	if err != nil {
		return fmt.Errorf("build error report: %w", err)
	}
	if ok {
		errPath := filepath.Join(reportsDir, ts+"-raw.error.report.yaml")
		if err := writeReportFile(errPath, func(w io.Writer) error { return report.WriteError(w, errReport) }); err != nil {
			return err
		}
	}
	return nil
}

func writeReportFile(path string, write func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return fmt.Errorf("render report %s: %w", path, err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

func recordValidationMetrics(err error) {
	switch e := err.(type) {
	case *validate.IrSchemaError:
		for _, issue := range e.Issues {
			metrics.IncValidationIssue(string(issue.Category))
		}
	case *validate.IrSemanticError:
		for _, issue := range e.Issues {
			metrics.IncValidationIssue(string(issue.Category))
		}
	}
}

func gateErrKind(err error) string {
	var gerr *gate.GateError
	if errors.As(err, &gerr) {
		return string(gerr.Kind)
	}
	return ""
}
