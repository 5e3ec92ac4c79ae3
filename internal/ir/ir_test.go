package ir

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func sampleDoc() string {
	return `ir_version: "1"
meta:
  name: engine_bus
  version: "1.0"
  source: engine.dbc
  format: dbc
bus_type:
  bustype: can
  busmode: classic
messages:
  - id: 256
    name: EngineStatus
    dlc: 1
    signals:
      - name: RPM_Flag
        start_bit: 0
        bit_length: 1
        byte_order: little_endian
        signed: false
        scale: 1
        offset: 0
`
}

func TestParseValidDocument(t *testing.T) {
	s, err := Parse(strings.NewReader(sampleDoc()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Meta.Name != "engine_bus" {
		t.Fatalf("Meta.Name = %q", s.Meta.Name)
	}
	if len(s.Messages) != 1 || s.Messages[0].ID != 256 {
		t.Fatalf("Messages = %+v", s.Messages)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	doc := strings.Replace(sampleDoc(), "scale: 1\n", "scale: 1\n        bogus: true\n", 1)
	_, err := Parse(strings.NewReader(doc))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	var schemaErr *IrSchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("error type = %T, want *IrSchemaError", err)
	}
}

func TestParseRejectsMissingRequiredField(t *testing.T) {
	doc := strings.Replace(sampleDoc(), `name: engine_bus`, "", 1)
	_, err := Parse(strings.NewReader(doc))
	if err == nil {
		t.Fatal("expected error for missing meta.name")
	}
}

func TestParseRejectsBadByteOrder(t *testing.T) {
	doc := strings.Replace(sampleDoc(), "little_endian", "middle_endian", 1)
	_, err := Parse(strings.NewReader(doc))
	if err == nil {
		t.Fatal("expected error for bad byte_order")
	}
}

// Property 6: parse(emit(parse(x))) == parse(x).
func TestRoundTripStability(t *testing.T) {
	s1, err := Parse(strings.NewReader(sampleDoc()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var buf1 bytes.Buffer
	if err := Emit(&buf1, s1); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	s2, err := Parse(bytes.NewReader(buf1.Bytes()))
	if err != nil {
		t.Fatalf("Parse(emit): %v", err)
	}
	var buf2 bytes.Buffer
	if err := Emit(&buf2, s2); err != nil {
		t.Fatalf("Emit second: %v", err)
	}
	if !bytes.Equal(buf1.Bytes(), buf2.Bytes()) {
		t.Fatalf("emit not stable:\n--- first ---\n%s\n--- second ---\n%s", buf1.String(), buf2.String())
	}
}

func TestEmitDeterministicAcrossCalls(t *testing.T) {
	s, err := Parse(strings.NewReader(sampleDoc()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var a, b bytes.Buffer
	if err := Emit(&a, s); err != nil {
		t.Fatal(err)
	}
	if err := Emit(&b, s); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("two Emit calls over the same Spec produced different bytes")
	}
}

func TestContentHashStable(t *testing.T) {
	s, err := Parse(strings.NewReader(sampleDoc()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	h1, err := ContentHash(s)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ContentHash(s)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("ContentHash not stable: %s vs %s", h1, h2)
	}
}
