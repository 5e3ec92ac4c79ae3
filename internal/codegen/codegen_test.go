package codegen

import (
	"strings"
	"testing"

	"github.com/kstaniek/canforge/internal/ir"
	"github.com/kstaniek/canforge/internal/layout"
)

func sampleSpec() ir.Spec {
	return ir.Spec{
		IRVersion: "1",
		Meta:      ir.Meta{Name: "Engine Bus", SourceID: "engine.dbc"},
		Messages: []ir.Message{{
			ID: 256, Name: "EngineStatus", DLC: 2,
			Signals: []ir.Signal{
				{Name: "RPM", StartBit: 0, BitLength: 16, ByteOrder: layout.LittleEndian, Scale: 1},
				{Name: "Flag", StartBit: 16, BitLength: 1, ByteOrder: layout.LittleEndian, Scale: 1},
			},
		}},
	}
}

func TestGenerateDeterministic(t *testing.T) {
	s := sampleSpec()
	a1, err := Generate(s)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	a2, err := Generate(s)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("Generate not deterministic across calls")
	}
}

func TestGenerateNamesAndSignatures(t *testing.T) {
	s := sampleSpec()
	art, err := Generate(s)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if art.HeaderName != "engine_bus_protocol.h" {
		t.Fatalf("HeaderName = %q", art.HeaderName)
	}
	if art.SourceName != "engine_bus_protocol.c" {
		t.Fatalf("SourceName = %q", art.SourceName)
	}
	wantDecls := []string{
		"cf_engine_bus_ENGINESTATUS_ID 256",
		"cf_engine_bus_ENGINESTATUS_DLC 2",
		"int cf_engine_bus_encode_enginestatus(uint8_t *out, size_t out_size, const cf_engine_bus_enginestatus_t *in);",
		"int cf_engine_bus_decode_enginestatus(const uint8_t *in, size_t in_size, cf_engine_bus_enginestatus_t *out);",
	}
	for _, want := range wantDecls {
		if !strings.Contains(art.HeaderSrc, want) {
			t.Errorf("header missing %q\n--- header ---\n%s", want, art.HeaderSrc)
		}
	}
	if !strings.Contains(art.SourceSrc, "cf_engine_bus_encode_enginestatus") {
		t.Errorf("source missing encoder definition")
	}
	if !strings.Contains(art.SourceSrc, "cf_engine_bus_RANGE") {
		t.Errorf("source missing range check")
	}
}

func TestGenerateRejectsFieldNameCollision(t *testing.T) {
	s := ir.Spec{
		IRVersion: "1",
		Meta:      ir.Meta{Name: "t", SourceID: "t.dbc"},
		Messages: []ir.Message{{
			ID: 1, Name: "M", DLC: 1,
			Signals: []ir.Signal{
				{Name: "A-B", StartBit: 0, BitLength: 4, ByteOrder: layout.LittleEndian, Scale: 1},
				{Name: "A_B", StartBit: 4, BitLength: 4, ByteOrder: layout.LittleEndian, Scale: 1},
			},
		}},
	}
	if _, err := Generate(s); err == nil {
		t.Fatal("expected CodegenError for colliding sanitized field names")
	}
}
