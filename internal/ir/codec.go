package ir

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/kstaniek/canforge/internal/layout"
)

// wireSpec/wireMessage/wireSignal/wireEnum mirror the on-disk YAML shape
// field-for-field. Field order is the canonical emit order: it is never a
// map, so no iteration order can leak into output.
type wireSpec struct {
	IRVersion string        `yaml:"ir_version"`
	Meta      wireMeta      `yaml:"meta"`
	BusType   wireBusType   `yaml:"bus_type"`
	Messages  []wireMessage `yaml:"messages"`
}

type wireMeta struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Source  string `yaml:"source"`
	Format  string `yaml:"format"`
}

type wireBusType struct {
	BusType string `yaml:"bustype"`
	BusMode string `yaml:"busmode"`
}

type wireMessage struct {
	ID      uint32       `yaml:"id"`
	Name    string       `yaml:"name"`
	DLC     int          `yaml:"dlc"`
	Signals []wireSignal `yaml:"signals"`
}

type wireSignal struct {
	Name      string     `yaml:"name"`
	StartBit  int        `yaml:"start_bit"`
	BitLength int        `yaml:"bit_length"`
	ByteOrder string     `yaml:"byte_order"`
	Signed    bool       `yaml:"signed"`
	Scale     float64    `yaml:"scale"`
	Offset    float64    `yaml:"offset"`
	Min       *float64   `yaml:"min,omitempty"`
	Max       *float64   `yaml:"max,omitempty"`
	Default   *int64     `yaml:"default,omitempty"`
	Enum      []wireEnum `yaml:"enum,omitempty"`
}

type wireEnum struct {
	Name  string `yaml:"name"`
	Value int64  `yaml:"value"`
}

const (
	byteOrderLittle = "little_endian"
	byteOrderBig    = "big_endian"
)

// Parse decodes a canonical IR document. Unknown top-level and nested
// keys are rejected (closed schema); missing required fields or type
// mismatches produce an *IrSchemaError naming the offending path.
func Parse(r io.Reader) (Spec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var w wireSpec
	if err := dec.Decode(&w); err != nil {
		if err == io.EOF {
			return Spec{}, &IrSchemaError{Path: "/", Detail: "empty document"}
		}
		return Spec{}, &IrSchemaError{Path: "/", Detail: err.Error()}
	}
	return fromWire(w)
}

// Emit writes s as a canonical YAML document: stable key order, 2-space
// indent, trailing newline. Two Emit calls over equal Spec values produce
// bytewise-identical output.
func Emit(w io.Writer, s Spec) error {
	wire := toWire(s)
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(wire); err != nil {
		return fmt.Errorf("ir: emit: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("ir: emit: %w", err)
	}
	out := buf.Bytes()
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	_, err := w.Write(out)
	return err
}

func fromWire(w wireSpec) (Spec, error) {
	if w.IRVersion == "" {
		return Spec{}, &IrSchemaError{Path: "/ir_version", Detail: "required field missing"}
	}
	if w.Meta.Name == "" {
		return Spec{}, &IrSchemaError{Path: "/meta/name", Detail: "required field missing"}
	}
	s := Spec{
		IRVersion: w.IRVersion,
		Meta: Meta{
			Name:         w.Meta.Name,
			SourceID:     w.Meta.Source,
			SourceFormat: w.Meta.Format,
			Version:      w.Meta.Version,
		},
		Bus: BusType{
			BusFamily: w.BusType.BusType,
			BusMode:   w.BusType.BusMode,
		},
	}
	seenMsgID := map[uint32]bool{}
	seenMsgName := map[string]bool{}
	for mi, wm := range w.Messages {
		path := fmt.Sprintf("/messages/%d", mi)
		if wm.Name == "" {
			return Spec{}, &IrSchemaError{Path: path + "/name", Detail: "required field missing"}
		}
		if seenMsgID[wm.ID] {
			return Spec{}, &IrSchemaError{Path: path + "/id", Detail: fmt.Sprintf("duplicate message id %d", wm.ID)}
		}
		if seenMsgName[wm.Name] {
			return Spec{}, &IrSchemaError{Path: path + "/name", Detail: fmt.Sprintf("duplicate message name %q", wm.Name)}
		}
		seenMsgID[wm.ID] = true
		seenMsgName[wm.Name] = true

		msg := Message{ID: wm.ID, Name: wm.Name, DLC: wm.DLC}
		seenSigName := map[string]bool{}
		for si, ws := range wm.Signals {
			spath := fmt.Sprintf("%s/signals/%d", path, si)
			if ws.Name == "" {
				return Spec{}, &IrSchemaError{Path: spath + "/name", Detail: "required field missing"}
			}
			if seenSigName[ws.Name] {
				return Spec{}, &IrSchemaError{Path: spath + "/name", Detail: fmt.Sprintf("duplicate signal name %q", ws.Name)}
			}
			seenSigName[ws.Name] = true
			order, err := parseByteOrder(ws.ByteOrder)
			if err != nil {
				return Spec{}, &IrSchemaError{Path: spath + "/byte_order", Detail: err.Error()}
			}
			// Primitive-range constraints (bit_length/dlc/start_bit bounds)
			// are deliberately NOT enforced here: that is Layer-0's job
			// (internal/validate.Schema), run on the typed Spec this
			// function returns. Parse only enforces the closed schema
			// (required fields, unknown keys, enum-valued fields) and the
			// uniqueness of message ids, message names and signal names.
			sig := Signal{
				Name:      ws.Name,
				StartBit:  ws.StartBit,
				BitLength: ws.BitLength,
				ByteOrder: order,
				Signed:    ws.Signed,
				Scale:     ws.Scale,
				Offset:    ws.Offset,
				Min:       ws.Min,
				Max:       ws.Max,
				Default:   ws.Default,
			}
			for ei, we := range ws.Enum {
				if we.Name == "" {
					return Spec{}, &IrSchemaError{Path: fmt.Sprintf("%s/enum/%d/name", spath, ei), Detail: "required field missing"}
				}
				sig.Enum = append(sig.Enum, EnumEntry{Name: we.Name, Value: we.Value})
			}
			msg.Signals = append(msg.Signals, sig)
		}
		s.Messages = append(s.Messages, msg)
	}
	return s, nil
}

func toWire(s Spec) wireSpec {
	w := wireSpec{
		IRVersion: s.IRVersion,
		Meta: wireMeta{
			Name:    s.Meta.Name,
			Version: s.Meta.Version,
			Source:  s.Meta.SourceID,
			Format:  s.Meta.SourceFormat,
		},
		BusType: wireBusType{
			BusType: s.Bus.BusFamily,
			BusMode: s.Bus.BusMode,
		},
	}
	for _, m := range s.Messages {
		wm := wireMessage{ID: m.ID, Name: m.Name, DLC: m.DLC}
		for _, sig := range m.Signals {
			ws := wireSignal{
				Name:      sig.Name,
				StartBit:  sig.StartBit,
				BitLength: sig.BitLength,
				ByteOrder: byteOrderString(sig.ByteOrder),
				Signed:    sig.Signed,
				Scale:     sig.Scale,
				Offset:    sig.Offset,
				Min:       sig.Min,
				Max:       sig.Max,
				Default:   sig.Default,
			}
			for _, e := range sig.Enum {
				ws.Enum = append(ws.Enum, wireEnum{Name: e.Name, Value: e.Value})
			}
			wm.Signals = append(wm.Signals, ws)
		}
		w.Messages = append(w.Messages, wm)
	}
	return w
}

func parseByteOrder(s string) (layout.ByteOrder, error) {
	switch s {
	case byteOrderLittle:
		return layout.LittleEndian, nil
	case byteOrderBig:
		return layout.BigEndian, nil
	default:
		return 0, fmt.Errorf("byte_order must be %q or %q, got %q", byteOrderLittle, byteOrderBig, s)
	}
}

func byteOrderString(o layout.ByteOrder) string {
	if o == layout.BigEndian {
		return byteOrderBig
	}
	return byteOrderLittle
}
