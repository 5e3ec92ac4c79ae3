package verify

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"
)

// fakeHarness mimics the generated _harness.c protocol over an io.Pipe
// loopback, no real process needed: ENCODE echoes its single token back
// as a one-byte hex payload, DECODE reverses that.
func fakeHarness(t *testing.T, stdinR io.Reader, stdoutW io.WriteCloser) {
	t.Helper()
	sc := bufio.NewScanner(stdinR)
	for sc.Scan() {
		fields := strings.SplitN(sc.Text(), " ", 3)
		if len(fields) < 2 {
			fmt.Fprintf(stdoutW, "ERR -4\n")
			continue
		}
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
			v, err := strconv.ParseUint(arg, 16, 64)
			if err != nil || v > 0xFF {
				fmt.Fprintf(stdoutW, "ERR -3\n")
				continue
			}
			fmt.Fprintf(stdoutW, "OK %02x\n", v)
		case "DECODE":
			b, err := hexToBytes(arg, 1)
			if err != nil {
				fmt.Fprintf(stdoutW, "ERR -2\n")
				continue
			}
			fmt.Fprintf(stdoutW, "OK %016x\n", uint64(b[0]))
		default:
			fmt.Fprintf(stdoutW, "ERR -4\n")
		}
	}
	stdoutW.Close()
}

func newLoopbackBinding(t *testing.T) *NativeBinding {
	t.Helper()
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	go fakeHarness(t, stdinR, stdoutW)
	b := newBinding(stdinW, stdoutR)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestNativeBindingEncodeDecodeRoundtrip(t *testing.T) {
	b := newLoopbackBinding(t)

	encoded, err := b.Encode("M", []uint64{0xAB})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if encoded != "ab" {
		t.Fatalf("Encode = %q, want %q", encoded, "ab")
	}

	decoded, err := b.Decode("M", encoded, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0] != 0xAB {
		t.Fatalf("Decode = %v, want [0xAB]", decoded)
	}
}

func TestNativeBindingSurfacesHarnessError(t *testing.T) {
	b := newLoopbackBinding(t)

	_, err := b.Encode("M", []uint64{0x1FF})
	if err == nil {
		t.Fatal("expected error for out-of-range value")
	}
	var herr *HarnessError
	if he, ok := err.(*HarnessError); ok {
		herr = he
	} else {
		t.Fatalf("error type = %T", err)
	}
	if herr.Code != -3 {
		t.Fatalf("Code = %d, want -3", herr.Code)
	}
}

func TestNativeBindingUnknownMessage(t *testing.T) {
	b := newLoopbackBinding(t)

	_, err := b.Encode("NoSuchMessage", []uint64{1})
	if err == nil {
		t.Fatal("expected error for unknown message")
	}
}
