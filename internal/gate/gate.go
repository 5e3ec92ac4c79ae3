// Package gate implements the codegen gate: a re-run determinism check, an
// artifact presence check, and a native compile check, each fatal on
// failure.
package gate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kstaniek/canforge/internal/codegen"
	"github.com/kstaniek/canforge/internal/ir"
)

// GateErrorKind is the closed set of ways the gate can fail.
type GateErrorKind string

const (
	DeterminismMismatch GateErrorKind = "DeterminismMismatch"
	MissingArtifact     GateErrorKind = "MissingArtifact"
	CompileFailed       GateErrorKind = "CompileFailed"
)

// GateError wraps the kind of gate failure and its detail.
type GateError struct {
	Kind         GateErrorKind
	ChangedFiles []string // DeterminismMismatch
	Missing      []string // MissingArtifact
	ExitCode     int      // CompileFailed
	Stderr       string   // CompileFailed
}

func (e *GateError) Error() string {
	switch e.Kind {
	case DeterminismMismatch:
		return fmt.Sprintf("gate: determinism mismatch in %v", e.ChangedFiles)
	case MissingArtifact:
		return fmt.Sprintf("gate: missing artifact(s) %v", e.Missing)
	case CompileFailed:
		return fmt.Sprintf("gate: compile failed (exit %d): %s", e.ExitCode, e.Stderr)
	default:
		return "gate: unknown failure"
	}
}

// Category is the stable string used by report consumers to classify
// this error kind.
func (e *GateError) Category() string { return "GateError" }

// StepResult records one gate step's pass/fail outcome and duration, for
// inclusion in the structured verdict.
type StepResult struct {
	Name     string
	Pass     bool
	Duration time.Duration
	Detail   string
}

// Verdict is the gate's single structured result.
type Verdict struct {
	Steps []StepResult
	Pass  bool
}

// Config controls the gate's optional knobs.
type Config struct {
	ToolchainHint  string // "auto", "gcc", "clang", or "msvc"
	CompileTimeout time.Duration
}

// DefaultConfig returns the gate's defaults: auto-detected toolchain, 10s
// compile timeout.
func DefaultConfig() Config {
	return Config{ToolchainHint: "auto", CompileTimeout: 10 * time.Second}
}

// Run executes the three gate steps against art, which must already be
// written under outDir as <name>_protocol.{h,c} (and the harness source).
// Each step is fatal: the first failing step stops the sequence and is
// reflected in the returned Verdict.Pass == false, but every step attempted
// before the failure (and the failing step itself) is recorded.
func Run(ctx context.Context, s ir.Spec, art codegen.Artifacts, outDir string, cfg Config) (Verdict, error) {
	var v Verdict

	start := time.Now()
	detErr := checkDeterminism(s, art, outDir)
	v.Steps = append(v.Steps, StepResult{Name: "determinism", Pass: detErr == nil, Duration: time.Since(start), Detail: detailOf(detErr)})
	if detErr != nil {
		return v, detErr
	}

	start = time.Now()
	presErr := checkPresence(art, outDir)
	v.Steps = append(v.Steps, StepResult{Name: "presence", Pass: presErr == nil, Duration: time.Since(start), Detail: detailOf(presErr)})
	if presErr != nil {
		return v, presErr
	}

	start = time.Now()
	compErr := checkCompile(ctx, art, outDir, cfg)
	v.Steps = append(v.Steps, StepResult{Name: "compile", Pass: compErr == nil, Duration: time.Since(start), Detail: detailOf(compErr)})
	if compErr != nil {
		return v, compErr
	}

	v.Pass = true
	return v, nil
}

func detailOf(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}

// checkDeterminism re-runs codegen.Generate in memory (codegen takes no
// filesystem input, so no scratch directory is needed here) and compares
// SHA-256 hashes of the re-run's sources against art's in-memory sources.
// outDir is not read; the files on disk are checked by checkPresence.
func checkDeterminism(s ir.Spec, art codegen.Artifacts, outDir string) error {
	rerun, err := codegen.Generate(s)
	if err != nil {
		return fmt.Errorf("gate: determinism re-run: %w", err)
	}
	var changed []string
	check := func(name, want, got string) {
		if hashString(want) != hashString(got) {
			changed = append(changed, name)
		}
	}
	check(art.HeaderName, art.HeaderSrc, rerun.HeaderSrc)
	check(art.SourceName, art.SourceSrc, rerun.SourceSrc)
	check(art.HarnessName, art.HarnessSrc, rerun.HarnessSrc)
	if len(changed) > 0 {
		return &GateError{Kind: DeterminismMismatch, ChangedFiles: changed}
	}
	return nil
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// checkPresence asserts the expected artifact files exist under outDir and
// are non-empty.
func checkPresence(art codegen.Artifacts, outDir string) error {
	var missing []string
	for _, name := range []string{art.HeaderName, art.SourceName} {
		fi, err := os.Stat(filepath.Join(outDir, name))
		if err != nil || fi.Size() == 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &GateError{Kind: MissingArtifact, Missing: missing}
	}
	return nil
}

// BuildHarness links art's generated source and harness source (expected
// already written under outDir by the caller, alongside the files the
// gate itself checked) into a standalone executable the roundtrip
// verifier drives over stdin/stdout. It is a thin reuse of the same
// toolchain detection checkCompile uses, so a harness only gets built
// with the compiler the compile step already proved works.
func BuildHarness(ctx context.Context, art codegen.Artifacts, outDir string, cfg Config) (string, error) {
	tc, err := detectToolchain(cfg.ToolchainHint)
	if err != nil {
		return "", &GateError{Kind: CompileFailed, ExitCode: -1, Stderr: err.Error()}
	}

	sourcePath := filepath.Join(outDir, art.SourceName)
	harnessPath := filepath.Join(outDir, art.HarnessName)
	outPath := filepath.Join(outDir, harnessExeName(art))

	cctx, cancel := context.WithTimeout(ctx, cfg.CompileTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, tc.bin, tc.linkArgs([]string{sourcePath, harnessPath}, outPath)...)
	setProcAttr(cmd)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if cctx.Err() != nil {
		if cmd.Process != nil {
			killProcessGroup(cmd.Process.Pid)
		}
		return "", &GateError{Kind: CompileFailed, ExitCode: -1, Stderr: fmt.Sprintf("harness link timed out after %s", cfg.CompileTimeout)}
	}
	if runErr != nil {
		exitCode := -1
		if ee, ok := runErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return "", &GateError{Kind: CompileFailed, ExitCode: exitCode, Stderr: stderr.String()}
	}
	return outPath, nil
}

func harnessExeName(art codegen.Artifacts) string {
	name := strings.TrimSuffix(art.HarnessName, ".c")
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}
