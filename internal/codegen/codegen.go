// Package codegen renders deterministic C encoder/decoder source from a
// validated IR, using a plain strings.Builder rather than a templating
// engine: a template engine that iterates a hash map would make two
// codegen runs over the same IR diverge, violating the gate's determinism
// check.
package codegen

import (
	"fmt"
	"strings"

	"github.com/kstaniek/canforge/internal/ir"
	"github.com/kstaniek/canforge/internal/layout"
)

// Result codes the generated C functions return.
const (
	ResultOK    = 0
	ResultNull  = -1
	ResultSize  = -2
	ResultRange = -3
)

// Artifacts is the pair of generated source files for one Spec, plus the
// harness source the roundtrip verifier compiles alongside them.
type Artifacts struct {
	HeaderName  string
	HeaderSrc   string
	SourceName  string
	SourceSrc   string
	HarnessName string
	HarnessSrc  string
}

// CodegenError reports an internal contradiction template expansion
// detected despite the input already passing validation. It should be
// unreachable on validated input.
type CodegenError struct {
	Detail string
}

func (e *CodegenError) Error() string { return "codegen: " + e.Detail }

// Category is the stable string used by report consumers to classify
// this error kind.
func (e *CodegenError) Category() string { return "CodegenError" }

type signalLayout struct {
	sig       ir.Signal
	field     string
	positions []int
}

// Generate renders the encoder/decoder pair for a validated Spec. Calling
// Generate twice on byte-identical Spec values produces byte-identical
// Artifacts: signal iteration always follows IR order, every identifier is
// a pure function of IR content, and nothing here consults the clock, the
// filesystem, or map iteration order.
func Generate(s ir.Spec) (Artifacts, error) {
	prefix := SpecPrefix(s.Meta.Name)
	baseName := Sanitize(s.Meta.Name)

	var header, source, harness strings.Builder
	guard := strings.ToUpper(prefix) + "_PROTOCOL_H"

	writeHeaderPreamble(&header, guard, prefix)
	writeSourcePreamble(&source, baseName, prefix)
	writeHarnessPreamble(&harness, baseName, prefix)

	for _, m := range s.Messages {
		layouts, err := messageLayouts(m)
		if err != nil {
			return Artifacts{}, err
		}
		if err := writeMessageHeader(&header, prefix, m, layouts); err != nil {
			return Artifacts{}, err
		}
		writeMessageEncoder(&source, prefix, m, layouts)
		writeMessageDecoder(&source, prefix, m, layouts)
		writeMessageHarness(&harness, prefix, m, layouts)
	}

	writeHarnessMain(&harness, s.Messages)
	header.WriteString("\n#endif // " + guard + "\n")

	return Artifacts{
		HeaderName:  baseName + "_protocol.h",
		HeaderSrc:   header.String(),
		SourceName:  baseName + "_protocol.c",
		SourceSrc:   source.String(),
		HarnessName: baseName + "_harness.c",
		HarnessSrc:  harness.String(),
	}, nil
}

func messageLayouts(m ir.Message) ([]signalLayout, error) {
	layouts := make([]signalLayout, 0, len(m.Signals))
	seenField := map[string]bool{}
	for _, sig := range m.Signals {
		positions, err := layout.Positions(sig.StartBit, sig.BitLength, sig.ByteOrder)
		if err != nil {
			return nil, &CodegenError{Detail: fmt.Sprintf("message %q signal %q: %v", m.Name, sig.Name, err)}
		}
		field := SignalField(sig.Name)
		if seenField[field] {
			return nil, &CodegenError{Detail: fmt.Sprintf("message %q: sanitized field name %q collides after naming policy", m.Name, field)}
		}
		seenField[field] = true
		layouts = append(layouts, signalLayout{sig: sig, field: field, positions: positions})
	}
	return layouts, nil
}

func storageType(sig ir.Signal) string {
	if sig.Signed {
		return "int64_t"
	}
	return "uint64_t"
}

func writeHeaderPreamble(w *strings.Builder, guard, prefix string) {
	fmt.Fprintf(w, "#ifndef %s\n#define %s\n\n", guard, guard)
	w.WriteString("#include <stdint.h>\n#include <stddef.h>\n\n")
	fmt.Fprintf(w, "#define %s_OK %d\n", prefix, ResultOK)
	fmt.Fprintf(w, "#define %s_NULL %d\n", prefix, ResultNull)
	fmt.Fprintf(w, "#define %s_SIZE %d\n", prefix, ResultSize)
	fmt.Fprintf(w, "#define %s_RANGE %d\n", prefix, ResultRange)
}

func writeSourcePreamble(w *strings.Builder, baseName, prefix string) {
	fmt.Fprintf(w, "#include \"%s_protocol.h\"\n#include <string.h>\n\n", baseName)
	w.WriteString(bitHelpers(prefix))
}

func bitHelpers(prefix string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "static void %s_set_bit(uint8_t *buf, int pos) {\n", prefix)
	b.WriteString("    buf[pos / 8] |= (uint8_t)(1u << (pos % 8));\n}\n\n")
	fmt.Fprintf(&b, "static int %s_get_bit(const uint8_t *buf, int pos) {\n", prefix)
	b.WriteString("    return (buf[pos / 8] >> (pos % 8)) & 1;\n}\n\n")
	fmt.Fprintf(&b, "static int %s_fits_unsigned(uint64_t v, int n) {\n", prefix)
	b.WriteString("    if (n >= 64) return 1;\n    return v < ((uint64_t)1 << n);\n}\n\n")
	fmt.Fprintf(&b, "static int %s_fits_signed(int64_t v, int n) {\n", prefix)
	b.WriteString("    if (n >= 64) return 1;\n")
	b.WriteString("    int64_t half = (int64_t)1 << (n - 1);\n")
	b.WriteString("    return v >= -half && v < half;\n}\n\n")
	return b.String()
}

func writeMessageHeader(w *strings.Builder, prefix string, m ir.Message, layouts []signalLayout) error {
	msgSym := MessageSymbol(m.Name)
	msgConst := MessageConstant(m.Name)
	fmt.Fprintf(w, "\n#define %s_%s_ID %d\n", prefix, msgConst, m.ID)
	fmt.Fprintf(w, "#define %s_%s_DLC %d\n\n", prefix, msgConst, m.DLC)
	fmt.Fprintf(w, "typedef struct {\n")
	if len(layouts) == 0 {
		w.WriteString("    int _unused; // message declares no signals\n")
	}
	for _, l := range layouts {
		fmt.Fprintf(w, "    %s %s;\n", storageType(l.sig), l.field)
	}
	fmt.Fprintf(w, "} %s_%s_t;\n\n", prefix, msgSym)
	fmt.Fprintf(w, "int %s_encode_%s(uint8_t *out, size_t out_size, const %s_%s_t *in);\n", prefix, msgSym, prefix, msgSym)
	fmt.Fprintf(w, "int %s_decode_%s(const uint8_t *in, size_t in_size, %s_%s_t *out);\n", prefix, msgSym, prefix, msgSym)
	return nil
}

func writeMessageEncoder(w *strings.Builder, prefix string, m ir.Message, layouts []signalLayout) {
	msgSym := MessageSymbol(m.Name)
	msgConst := MessageConstant(m.Name)
	fmt.Fprintf(w, "\nint %s_encode_%s(uint8_t *out, size_t out_size, const %s_%s_t *in) {\n", prefix, msgSym, prefix, msgSym)
	fmt.Fprintf(w, "    if (out == NULL || in == NULL) return %s_NULL;\n", prefix)
	fmt.Fprintf(w, "    if (out_size < %s_%s_DLC) return %s_SIZE;\n", prefix, msgConst, prefix)
	for _, l := range layouts {
		n := l.sig.BitLength
		if l.sig.Signed {
			fmt.Fprintf(w, "    if (!%s_fits_signed((int64_t)in->%s, %d)) return %s_RANGE;\n", prefix, l.field, n, prefix)
		} else {
			fmt.Fprintf(w, "    if (!%s_fits_unsigned((uint64_t)in->%s, %d)) return %s_RANGE;\n", prefix, l.field, n, prefix)
		}
	}
	fmt.Fprintf(w, "    memset(out, 0, %s_%s_DLC);\n", prefix, msgConst)
	for _, l := range layouts {
		fmt.Fprintf(w, "    {\n        uint64_t v = (uint64_t)in->%s;\n", l.field)
		for i, p := range l.positions {
			fmt.Fprintf(w, "        if ((v >> %d) & 1ULL) %s_set_bit(out, %d);\n", i, prefix, p)
		}
		w.WriteString("    }\n")
	}
	fmt.Fprintf(w, "    return %s_OK;\n}\n", prefix)
}

func writeMessageDecoder(w *strings.Builder, prefix string, m ir.Message, layouts []signalLayout) {
	msgSym := MessageSymbol(m.Name)
	msgConst := MessageConstant(m.Name)
	fmt.Fprintf(w, "\nint %s_decode_%s(const uint8_t *in, size_t in_size, %s_%s_t *out) {\n", prefix, msgSym, prefix, msgSym)
	fmt.Fprintf(w, "    if (in == NULL || out == NULL) return %s_NULL;\n", prefix)
	fmt.Fprintf(w, "    if (in_size < %s_%s_DLC) return %s_SIZE;\n", prefix, msgConst, prefix)
	fmt.Fprintf(w, "    memset(out, 0, sizeof(*out));\n")
	for _, l := range layouts {
		n := l.sig.BitLength
		fmt.Fprintf(w, "    {\n        uint64_t v = 0;\n")
		for i, p := range l.positions {
			fmt.Fprintf(w, "        v |= ((uint64_t)%s_get_bit(in, %d)) << %d;\n", prefix, p, i)
		}
		if l.sig.Signed && n < 64 {
			fmt.Fprintf(w, "        if (v & ((uint64_t)1 << %d)) v |= (~(uint64_t)0) << %d;\n", n-1, n)
		}
		if l.sig.Signed {
			fmt.Fprintf(w, "        out->%s = (int64_t)v;\n", l.field)
		} else {
			fmt.Fprintf(w, "        out->%s = v;\n", l.field)
		}
		w.WriteString("    }\n")
	}
	fmt.Fprintf(w, "    return %s_OK;\n}\n", prefix)
}

// OrderedMessageNames returns message names in IR order; exposed for the
// report writer, which must list per-message outcomes deterministically.
func OrderedMessageNames(s ir.Spec) []string {
	names := make([]string, len(s.Messages))
	for i, m := range s.Messages {
		names[i] = m.Name
	}
	return names
}
