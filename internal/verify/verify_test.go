package verify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/kstaniek/canforge/internal/ir"
	"github.com/kstaniek/canforge/internal/layout"
)

func singleSignalSpec() ir.Spec {
	return ir.Spec{
		IRVersion: "1",
		Meta:      ir.Meta{Name: "t", SourceID: "t.dbc"},
		Messages: []ir.Message{{
			ID: 1, Name: "M", DLC: 1,
			Signals: []ir.Signal{
				{Name: "S", StartBit: 0, BitLength: 8, ByteOrder: layout.LittleEndian, Scale: 1},
			},
		}},
	}
}

func TestRunPassesAgainstLoopbackHarness(t *testing.T) {
	s := singleSignalSpec()
	b := newLoopbackBinding(t)

	campaign := Campaign{MasterSeed: 123, Loops: 5, FailPolicy: ContinueOnFail}
	report, err := Run(context.Background(), s, b, campaign)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Passed() {
		for _, o := range report.Outcomes {
			if !o.Pass {
				t.Errorf("loop %d: %v", o.LoopIndex, o.Failure)
			}
		}
		t.Fatal("expected all loops to pass")
	}
	if len(report.Outcomes) != campaign.Loops {
		t.Fatalf("len(Outcomes) = %d, want %d", len(report.Outcomes), campaign.Loops)
	}
	if len(report.LoopSeeds) != campaign.Loops {
		t.Fatalf("len(LoopSeeds) = %d, want %d", len(report.LoopSeeds), campaign.Loops)
	}
}

func TestRunReproducibleLoopSeeds(t *testing.T) {
	s := singleSignalSpec()
	campaign := Campaign{MasterSeed: 999, Loops: 4, FailPolicy: ContinueOnFail}

	b1 := newLoopbackBinding(t)
	r1, err := Run(context.Background(), s, b1, campaign)
	if err != nil {
		t.Fatalf("Run 1: %v", err)
	}

	b2 := newLoopbackBinding(t)
	r2, err := Run(context.Background(), s, b2, campaign)
	if err != nil {
		t.Fatalf("Run 2: %v", err)
	}

	if len(r1.LoopSeeds) != len(r2.LoopSeeds) {
		t.Fatalf("loop seed counts differ: %d vs %d", len(r1.LoopSeeds), len(r2.LoopSeeds))
	}
	for i := range r1.LoopSeeds {
		if r1.LoopSeeds[i] != r2.LoopSeeds[i] {
			t.Fatalf("loop seed %d differs across runs: %d vs %d", i, r1.LoopSeeds[i], r2.LoopSeeds[i])
		}
	}
}

// buggyDecodeBinding wires ENCODE correctly but DECODE to flip the low
// bit of the byte it returns, simulating an injected decoder bug so the
// campaign must catch a VALUE_MISMATCH.
func buggyDecodeBinding(t *testing.T) *NativeBinding {
	t.Helper()
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	go func() {
		sc := bufio.NewScanner(stdinR)
		for sc.Scan() {
			fields := strings.SplitN(sc.Text(), " ", 3)
			verb, msg := fields[0], fields[1]
			arg := ""
			if len(fields) == 3 {
				arg = fields[2]
			}
			if msg != "M" {
				fmt.Fprintf(stdoutW, "ERR -4\n")
				continue
			}
			switch verb {
			case "ENCODE":
				v, _ := strconv.ParseUint(arg, 16, 64)
				fmt.Fprintf(stdoutW, "OK %02x\n", v&0xFF)
			case "DECODE":
				b, _ := hexToBytes(arg, 1)
				fmt.Fprintf(stdoutW, "OK %016x\n", uint64(b[0]^0x01))
			}
		}
		stdoutW.Close()
	}()
	b := newBinding(stdinW, stdoutR)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestRunDetectsInjectedDecodeMismatch(t *testing.T) {
	s := singleSignalSpec()
	b := buggyDecodeBinding(t)

	campaign := Campaign{MasterSeed: 1, Loops: 3, FailPolicy: ContinueOnFail}
	report, err := Run(context.Background(), s, b, campaign)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Passed() {
		t.Fatal("expected a VALUE_MISMATCH against an injected decoder bug")
	}
	found := false
	for _, o := range report.Outcomes {
		if o.Failure != nil && o.Failure.Kind == ValueMismatch {
			found = true
		}
	}
	if !found {
		t.Fatal("expected at least one ValueMismatch failure")
	}
}

func TestRunStopOnFailHaltsEarly(t *testing.T) {
	s := singleSignalSpec()
	b := buggyDecodeBinding(t)

	campaign := Campaign{MasterSeed: 1, Loops: 10, FailPolicy: StopOnFail}
	report, err := Run(context.Background(), s, b, campaign)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Stopped {
		t.Fatal("expected Stopped=true under StopOnFail")
	}
	if len(report.Outcomes) >= campaign.Loops {
		t.Fatalf("expected early halt, got %d outcomes out of %d loops", len(report.Outcomes), campaign.Loops)
	}
}
