package gate

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/kstaniek/canforge/internal/codegen"
	"github.com/kstaniek/canforge/internal/ir"
	"github.com/kstaniek/canforge/internal/layout"
)

func sampleSpec() ir.Spec {
	return ir.Spec{
		IRVersion: "1",
		Meta:      ir.Meta{Name: "gatetest", SourceID: "t.dbc"},
		Messages: []ir.Message{{
			ID: 1, Name: "M", DLC: 1,
			Signals: []ir.Signal{
				{Name: "S", StartBit: 0, BitLength: 8, ByteOrder: layout.LittleEndian, Scale: 1},
			},
		}},
	}
}

func writeArtifacts(t *testing.T, dir string, art codegen.Artifacts) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, art.HeaderName), []byte(art.HeaderSrc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, art.SourceName), []byte(art.SourceSrc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, art.HarnessName), []byte(art.HarnessSrc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func skipWithoutCC(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("cc"); err != nil {
		if _, err2 := exec.LookPath("gcc"); err2 != nil {
			if _, err3 := exec.LookPath("clang"); err3 != nil {
				t.Skip("no C toolchain available in this environment")
			}
		}
	}
}

func TestCheckDeterminismPasses(t *testing.T) {
	s := sampleSpec()
	art, err := codegen.Generate(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := checkDeterminism(s, art, t.TempDir()); err != nil {
		t.Fatalf("checkDeterminism: %v", err)
	}
}

func TestCheckDeterminismFailsOnTamperedArtifact(t *testing.T) {
	s := sampleSpec()
	art, err := codegen.Generate(s)
	if err != nil {
		t.Fatal(err)
	}
	tampered := art
	tampered.SourceSrc += "\n// tampered\n"
	err = checkDeterminism(s, tampered, t.TempDir())
	if err == nil {
		t.Fatal("expected determinism mismatch")
	}
	var gerr *GateError
	if ge, ok := err.(*GateError); ok {
		gerr = ge
	} else {
		t.Fatalf("error type = %T", err)
	}
	if gerr.Kind != DeterminismMismatch {
		t.Fatalf("Kind = %s", gerr.Kind)
	}
}

func TestCheckPresence(t *testing.T) {
	s := sampleSpec()
	art, err := codegen.Generate(s)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := checkPresence(art, dir); err == nil {
		t.Fatal("expected missing artifact before writing files")
	}
	writeArtifacts(t, dir, art)
	if err := checkPresence(art, dir); err != nil {
		t.Fatalf("checkPresence: %v", err)
	}
}

func TestRunFullGate(t *testing.T) {
	skipWithoutCC(t)
	s := sampleSpec()
	art, err := codegen.Generate(s)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	writeArtifacts(t, dir, art)
	v, err := Run(context.Background(), s, art, dir, DefaultConfig())
	if err != nil {
		t.Fatalf("Run: %v (steps=%+v)", err, v.Steps)
	}
	if !v.Pass {
		t.Fatalf("Verdict.Pass = false, steps=%+v", v.Steps)
	}
	if len(v.Steps) != 3 {
		t.Fatalf("len(Steps) = %d, want 3", len(v.Steps))
	}
}

func TestBuildHarnessProducesRunnableExecutable(t *testing.T) {
	skipWithoutCC(t)
	s := sampleSpec()
	art, err := codegen.Generate(s)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	writeArtifacts(t, dir, art)

	path, err := BuildHarness(context.Background(), art, dir, DefaultConfig())
	if err != nil {
		t.Fatalf("BuildHarness: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("harness binary not written: %v", err)
	}

	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start harness: %v", err)
	}
	defer cmd.Wait()
	defer stdin.Close()

	if _, err := stdin.Write([]byte("ENCODE M 0000000000000001\n")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	n, err := stdout.Read(buf)
	if err != nil {
		t.Fatalf("read harness response: %v", err)
	}
	got := string(buf[:n])
	if got != "OK 01\n" {
		t.Fatalf("harness response = %q, want %q", got, "OK 01\n")
	}
}
