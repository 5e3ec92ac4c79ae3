// Package verify implements the roundtrip verifier: a test campaign that
// samples every signal's raw value, drives the compiled C encoder/decoder
// over the native harness protocol (internal/codegen's generated
// _harness.c), and asserts decode(encode(x)) == x plus the mask property:
// bits outside a signal's position set stay zero after encode, and
// re-encoding a decoded payload reproduces the payload masked to the
// message's occupied bits.
package verify

import (
	"context"
	"fmt"

	"github.com/kstaniek/canforge/internal/ir"
	"github.com/kstaniek/canforge/internal/layout"
)

// FailPolicy controls whether a campaign keeps going after a failing
// loop.
type FailPolicy int

const (
	ContinueOnFail FailPolicy = iota
	StopOnFail
)

func (p FailPolicy) String() string {
	if p == StopOnFail {
		return "stop-on-fail"
	}
	return "continue-on-fail"
}

// Campaign configures one roundtrip test run.
type Campaign struct {
	MasterSeed uint64
	Loops      int
	FailPolicy FailPolicy
}

// RoundtripFailureKind classifies why one loop failed.
type RoundtripFailureKind string

const (
	ValueMismatch  RoundtripFailureKind = "VALUE_MISMATCH"
	MaskViolation  RoundtripFailureKind = "MASK_VIOLATION"
	EncodeRejected RoundtripFailureKind = "ENCODE_REJECTED"
	DecodeRejected RoundtripFailureKind = "DECODE_REJECTED"
)

// RoundtripFailure reports one failing loop for one message.
type RoundtripFailure struct {
	Kind       RoundtripFailureKind
	Message    string
	LoopIndex  int
	LoopSeed   uint64
	Signal     string
	Detail     string
	Input      []uint64
	Encoded    string
	Decoded    []uint64
}

func (f *RoundtripFailure) Error() string {
	return fmt.Sprintf("verify: loop %d message %q: %s: %s", f.LoopIndex, f.Message, f.Kind, f.Detail)
}

// Category is the stable string used by report consumers to classify
// this failure kind.
func (f *RoundtripFailure) Category() string { return string(f.Kind) }

// MessageOutcome is one message's result within one loop.
type MessageOutcome struct {
	Message   string
	LoopIndex int
	LoopSeed  uint64
	Pass      bool
	Failure   *RoundtripFailure
}

// Report is the in-memory result of one campaign, before being handed to
// internal/report for canonical serialization.
type Report struct {
	MasterSeed uint64
	LoopSeeds  []uint64
	Outcomes   []MessageOutcome
	Stopped    bool // true if StopOnFail halted the campaign early
}

// Passed reports whether every recorded outcome passed.
func (r Report) Passed() bool {
	for _, o := range r.Outcomes {
		if !o.Pass {
			return false
		}
	}
	return true
}

// messageLayout mirrors internal/codegen's own per-signal layout, kept
// local so internal/verify does not need to import internal/codegen (the
// compiled artifact is addressed purely by message/signal name over the
// harness protocol, not by generated C symbols).
type messageLayout struct {
	message   ir.Message
	positions [][]int
	dlcBytes  int
}

func buildLayout(m ir.Message) (messageLayout, error) {
	positions := make([][]int, len(m.Signals))
	for i, sig := range m.Signals {
		pos, err := layout.Positions(sig.StartBit, sig.BitLength, sig.ByteOrder)
		if err != nil {
			return messageLayout{}, fmt.Errorf("verify: message %q signal %q: %w", m.Name, sig.Name, err)
		}
		positions[i] = pos
	}
	return messageLayout{message: m, positions: positions, dlcBytes: m.DLC}, nil
}

// Run drives campaign.Loops loops of the roundtrip property test, over
// every message in s, against the harness process behind binding.
func Run(ctx context.Context, s ir.Spec, binding *NativeBinding, campaign Campaign) (Report, error) {
	loopSeeds := make([]uint64, campaign.Loops)
	for i := range loopSeeds {
		loopSeeds[i] = DeriveSeed(campaign.MasterSeed, i)
	}

	layouts := make([]messageLayout, len(s.Messages))
	for i, m := range s.Messages {
		ml, err := buildLayout(m)
		if err != nil {
			return Report{}, err
		}
		layouts[i] = ml
	}

	report := Report{MasterSeed: campaign.MasterSeed, LoopSeeds: loopSeeds}

loopLoop:
	for loopIdx, seed := range loopSeeds {
		if err := ctx.Err(); err != nil {
			report.Stopped = true
			break
		}
		r := newRNG(seed)
		for _, ml := range layouts {
			outcome := runOneMessage(binding, ml, loopIdx, seed, r)
			report.Outcomes = append(report.Outcomes, outcome)
			if !outcome.Pass && campaign.FailPolicy == StopOnFail {
				report.Stopped = true
				break loopLoop
			}
		}
	}

	return report, nil
}

func runOneMessage(binding *NativeBinding, ml messageLayout, loopIdx int, seed uint64, r *rng) MessageOutcome {
	m := ml.message
	outcome := MessageOutcome{Message: m.Name, LoopIndex: loopIdx, LoopSeed: seed}

	input := make([]uint64, len(m.Signals))
	for i, sig := range m.Signals {
		if sig.Signed {
			input[i] = uint64(r.uniformSigned(sig.BitLength))
		} else {
			input[i] = r.uniformUnsigned(sig.BitLength)
		}
	}

	encoded, err := binding.Encode(m.Name, input)
	if err != nil {
		outcome.Failure = &RoundtripFailure{
			Kind: EncodeRejected, Message: m.Name, LoopIndex: loopIdx, LoopSeed: seed,
			Detail: err.Error(), Input: input,
		}
		return outcome
	}

	payload, err := hexToBytes(encoded, ml.dlcBytes)
	if err != nil {
		outcome.Failure = &RoundtripFailure{
			Kind: EncodeRejected, Message: m.Name, LoopIndex: loopIdx, LoopSeed: seed,
			Detail: "malformed encoded payload: " + err.Error(), Input: input, Encoded: encoded,
		}
		return outcome
	}

	if f := checkMask(m, ml.positions, payload, loopIdx, seed, input, encoded); f != nil {
		outcome.Failure = f
		return outcome
	}

	decoded, err := binding.Decode(m.Name, encoded, len(m.Signals))
	if err != nil {
		outcome.Failure = &RoundtripFailure{
			Kind: DecodeRejected, Message: m.Name, LoopIndex: loopIdx, LoopSeed: seed,
			Detail: err.Error(), Input: input, Encoded: encoded,
		}
		return outcome
	}

	for i, sig := range m.Signals {
		want := input[i]
		got := decoded[i]
		if sig.Signed {
			want = maskTo(want, sig.BitLength)
			got = maskTo(got, sig.BitLength)
		}
		if want != got {
			outcome.Failure = &RoundtripFailure{
				Kind: ValueMismatch, Message: m.Name, LoopIndex: loopIdx, LoopSeed: seed,
				Signal: sig.Name, Input: input, Encoded: encoded, Decoded: decoded,
				Detail: fmt.Sprintf("signal %q: want %#x, got %#x", sig.Name, want, got),
			}
			return outcome
		}
	}

	if f := checkReencode(binding, ml, loopIdx, seed, r); f != nil {
		outcome.Failure = f
		return outcome
	}

	outcome.Pass = true
	return outcome
}

// checkReencode samples an arbitrary payload, decodes it, re-encodes the
// decoded values, and asserts the result equals the sampled payload masked
// to the union of the message's signal positions. This is the half of the
// mask property the plain roundtrip cannot see: bits a decoder silently
// drops or invents only show up when the decoded struct is pushed back
// through encode.
func checkReencode(binding *NativeBinding, ml messageLayout, loopIdx int, seed uint64, r *rng) *RoundtripFailure {
	m := ml.message
	sampled := make([]byte, ml.dlcBytes)
	for i := range sampled {
		sampled[i] = byte(r.next())
	}
	sampledHex := bytesToHex(sampled)

	decoded, err := binding.Decode(m.Name, sampledHex, len(m.Signals))
	if err != nil {
		return &RoundtripFailure{
			Kind: DecodeRejected, Message: m.Name, LoopIndex: loopIdx, LoopSeed: seed,
			Encoded: sampledHex, Detail: "decode of sampled payload: " + err.Error(),
		}
	}

	reencoded, err := binding.Encode(m.Name, decoded)
	if err != nil {
		return &RoundtripFailure{
			Kind: EncodeRejected, Message: m.Name, LoopIndex: loopIdx, LoopSeed: seed,
			Input: decoded, Encoded: sampledHex, Detail: "re-encode of decoded payload: " + err.Error(),
		}
	}

	all := make([]int, 0, ml.dlcBytes*8)
	for _, pos := range ml.positions {
		all = append(all, pos...)
	}
	mask := layout.Mask(all, ml.dlcBytes)
	want := make([]byte, ml.dlcBytes)
	for i := range want {
		want[i] = sampled[i] & mask[i]
	}
	if reencoded != bytesToHex(want) {
		return &RoundtripFailure{
			Kind: MaskViolation, Message: m.Name, LoopIndex: loopIdx, LoopSeed: seed,
			Input: decoded, Encoded: reencoded, Decoded: decoded,
			Detail: fmt.Sprintf("re-encode of decode(%s) = %s, want %s", sampledHex, reencoded, bytesToHex(want)),
		}
	}
	return nil
}

// checkMask asserts every payload bit outside the message's occupied
// position set is zero after encode.
func checkMask(m ir.Message, positions [][]int, payload []byte, loopIdx int, seed uint64, input []uint64, encoded string) *RoundtripFailure {
	occupied := map[int]struct{}{}
	for _, pos := range positions {
		for _, p := range pos {
			occupied[p] = struct{}{}
		}
	}
	for byteIdx, b := range payload {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) == 0 {
				continue
			}
			if _, ok := occupied[byteIdx*8+bit]; !ok {
				return &RoundtripFailure{
					Kind: MaskViolation, Message: m.Name, LoopIndex: loopIdx, LoopSeed: seed,
					Input: input, Encoded: encoded,
					Detail: fmt.Sprintf("bit %d set outside any signal's position set", byteIdx*8+bit),
				}
			}
		}
	}
	return nil
}

func bytesToHex(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 2*len(b))
	for i, c := range b {
		out[2*i] = digits[c>>4]
		out[2*i+1] = digits[c&0xF]
	}
	return string(out)
}

func maskTo(v uint64, n int) uint64 {
	if n >= 64 {
		return v
	}
	return v & ((uint64(1) << uint(n)) - 1)
}

func hexToBytes(s string, wantLen int) ([]byte, error) {
	if len(s) != 2*wantLen {
		return nil, fmt.Errorf("length %d, want %d hex chars", len(s), 2*wantLen)
	}
	out := make([]byte, wantLen)
	for i := 0; i < wantLen; i++ {
		hi, err := hexDigit(s[2*i])
		if err != nil {
			return nil, err
		}
		lo, err := hexDigit(s[2*i+1])
		if err != nil {
			return nil, err
		}
		out[i] = byte(hi<<4 | lo)
	}
	return out, nil
}

func hexDigit(c byte) (int, error) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, nil
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit %q", c)
	}
}
