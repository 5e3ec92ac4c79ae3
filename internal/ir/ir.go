// Package ir holds the typed, canonical intermediate representation of a
// bus protocol specification: Spec, Message, Signal and their canonical
// YAML serialization. Entities are produced once per ingestion and never
// mutated in place; fix-up is a pure transformation producing a new Spec.
package ir

import (
	"fmt"

	"github.com/kstaniek/canforge/internal/layout"
)

// Spec is the root IR document.
type Spec struct {
	IRVersion string
	Meta      Meta
	Bus       BusType
	Messages  []Message
}

// Meta is the document's descriptive metadata block.
type Meta struct {
	Name         string
	SourceID     string
	SourceFormat string
	Version      string
}

// BusType describes the originating bus family and mode.
type BusType struct {
	BusFamily string
	BusMode   string
}

// Message is one framed unit on the bus.
type Message struct {
	ID      uint32
	Name    string
	DLC     int
	Signals []Signal
}

// Signal is a named bit-field within a Message's payload.
type Signal struct {
	Name      string
	StartBit  int
	BitLength int
	ByteOrder layout.ByteOrder
	Signed    bool
	Scale     float64
	Offset    float64
	Min       *float64
	Max       *float64
	Default   *int64
	Enum      []EnumEntry
}

// EnumEntry is one (label, integer value) pair in a signal's enum table.
type EnumEntry struct {
	Name  string
	Value int64
}

// Identity returns the (name, source id) tuple that identifies a Spec.
func (s Spec) Identity() (name, sourceID string) {
	return s.Meta.Name, s.Meta.SourceID
}

// MessageByID returns the message with the given numeric ID, or false if
// no such message exists.
func (s Spec) MessageByID(id uint32) (Message, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// IrSchemaError reports a Layer-0 structural failure: a type mismatch,
// missing required field, or unknown key, located by a JSON-pointer-style
// path (e.g. "/messages/2/signals/0/bit_length").
type IrSchemaError struct {
	Path   string
	Detail string
}

func (e *IrSchemaError) Error() string {
	return fmt.Sprintf("ir schema error at %s: %s", e.Path, e.Detail)
}

// Category is the stable string used by report consumers to classify
// this error kind.
func (e *IrSchemaError) Category() string { return "IrSchemaError" }
