// Package report renders canonical YAML summary and error reports for one
// roundtrip verification campaign: a summary is always written, an error
// report only when failures occurred, and two identical campaigns produce
// byte-equal reports modulo the timestamp field.
package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kstaniek/canforge/internal/ir"
	"github.com/kstaniek/canforge/internal/verify"
)

// FileHash names one artifact file alongside its content hash, so a
// report can be compared against a rebuilt artifact set without
// re-reading the filesystem.
type FileHash struct {
	Name   string `yaml:"name"`
	SHA256 string `yaml:"sha256"`
}

// LoopOutcome is one message's pass/fail result within one loop, the
// summary report's per-loop-per-message entry.
type LoopOutcome struct {
	LoopIndex int    `yaml:"loop_index"`
	LoopSeed  uint64 `yaml:"loop_seed"`
	Message   string `yaml:"message"`
	Pass      bool   `yaml:"pass"`
}

// Summary is the always-written report.
type Summary struct {
	Timestamp      string        `yaml:"timestamp"`
	ToolVersion    string        `yaml:"tool_version"`
	IRPath         string        `yaml:"ir_path"`
	IRContentHash  string        `yaml:"ir_content_hash"`
	ArtifactDir    string        `yaml:"artifact_dir"`
	ArtifactHashes []FileHash    `yaml:"artifact_hashes"`
	MasterSeed     uint64        `yaml:"master_seed"`
	LoopSeeds      []uint64      `yaml:"loop_seeds"`
	Loops          []LoopOutcome `yaml:"loops"`
	Stopped        bool          `yaml:"stopped_early"`
	Pass           bool          `yaml:"pass"`
}

// FailureEntry is one error report entry: the sampled inputs, the
// encoded payload, the decoded values, and the property that failed.
type FailureEntry struct {
	LoopIndex int      `yaml:"loop_index"`
	LoopSeed  uint64   `yaml:"loop_seed"`
	Message   string   `yaml:"message"`
	Property  string   `yaml:"property"`
	Signal    string   `yaml:"signal,omitempty"`
	Input     []uint64 `yaml:"input,omitempty"`
	Encoded   string   `yaml:"encoded,omitempty"`
	Decoded   []uint64 `yaml:"decoded,omitempty"`
	Detail    string   `yaml:"detail"`
}

// ErrorReport is written only when a campaign recorded at least one
// failure.
type ErrorReport struct {
	Timestamp      string         `yaml:"timestamp"`
	ToolVersion    string         `yaml:"tool_version"`
	IRPath         string         `yaml:"ir_path"`
	IRContentHash  string         `yaml:"ir_content_hash"`
	ArtifactDir    string         `yaml:"artifact_dir"`
	ArtifactHashes []FileHash     `yaml:"artifact_hashes"`
	MasterSeed     uint64         `yaml:"master_seed"`
	LoopSeeds      []uint64       `yaml:"loop_seeds"`
	Failures       []FailureEntry `yaml:"failures"`
}

// Inputs bundles the per-campaign facts a report needs beyond the
// verify.Report itself: identity of the IR and compiled artifacts this
// campaign ran against, the tool's own version, and a timestamp (the
// caller supplies it so report construction stays a pure function of its
// arguments, same as every other component in this pipeline).
type Inputs struct {
	ToolVersion    string
	IRPath         string
	ArtifactDir    string
	ArtifactHashes []FileHash
	Timestamp      string
}

// BuildSummary assembles a Summary from a finished campaign report.
func BuildSummary(s ir.Spec, in Inputs, vr verify.Report) (Summary, error) {
	irHash, err := ir.ContentHash(s)
	if err != nil {
		return Summary{}, fmt.Errorf("report: ir content hash: %w", err)
	}
	sum := Summary{
		Timestamp:      in.Timestamp,
		ToolVersion:    in.ToolVersion,
		IRPath:         in.IRPath,
		IRContentHash:  irHash,
		ArtifactDir:    in.ArtifactDir,
		ArtifactHashes: in.ArtifactHashes,
		MasterSeed:     vr.MasterSeed,
		LoopSeeds:      vr.LoopSeeds,
		Stopped:        vr.Stopped,
		Pass:           vr.Passed(),
	}
	for _, o := range vr.Outcomes {
		sum.Loops = append(sum.Loops, LoopOutcome{
			LoopIndex: o.LoopIndex,
			LoopSeed:  o.LoopSeed,
			Message:   o.Message,
			Pass:      o.Pass,
		})
	}
	return sum, nil
}

// BuildError assembles an ErrorReport from a campaign report's failures.
// It returns ok=false if vr recorded no failures, in which case no error
// report should be written.
func BuildError(s ir.Spec, in Inputs, vr verify.Report) (report ErrorReport, ok bool, err error) {
	irHash, err := ir.ContentHash(s)
	if err != nil {
		return ErrorReport{}, false, fmt.Errorf("report: ir content hash: %w", err)
	}
	er := ErrorReport{
		Timestamp:      in.Timestamp,
		ToolVersion:    in.ToolVersion,
		IRPath:         in.IRPath,
		IRContentHash:  irHash,
		ArtifactDir:    in.ArtifactDir,
		ArtifactHashes: in.ArtifactHashes,
		MasterSeed:     vr.MasterSeed,
		LoopSeeds:      vr.LoopSeeds,
	}
	for _, o := range vr.Outcomes {
		if o.Pass || o.Failure == nil {
			continue
		}
		f := o.Failure
		er.Failures = append(er.Failures, FailureEntry{
			LoopIndex: f.LoopIndex,
			LoopSeed:  f.LoopSeed,
			Message:   f.Message,
			Property:  string(f.Kind),
			Signal:    f.Signal,
			Input:     f.Input,
			Encoded:   f.Encoded,
			Decoded:   f.Decoded,
			Detail:    f.Detail,
		})
	}
	if len(er.Failures) == 0 {
		return ErrorReport{}, false, nil
	}
	return er, true, nil
}

// WriteSummary writes s as a canonical YAML document.
func WriteSummary(w io.Writer, s Summary) error {
	return encode(w, s)
}

// WriteError writes e as a canonical YAML document.
func WriteError(w io.Writer, e ErrorReport) error {
	return encode(w, e)
}

func encode(w io.Writer, v interface{}) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	out := buf.Bytes()
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	_, err := w.Write(out)
	return err
}

// SummaryContentHash returns the SHA-256 of s's canonical emit with
// Timestamp cleared, so two campaigns that agree on everything but
// wall-clock time hash identically.
func SummaryContentHash(s Summary) (string, error) {
	s.Timestamp = ""
	var buf bytes.Buffer
	if err := encode(&buf, s); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// HashFile returns the hex-encoded SHA-256 of the file at path, for
// populating ArtifactHashes.
func HashFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("report: hash %s: %w", path, err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
