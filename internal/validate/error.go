package validate

import (
	"fmt"

	"github.com/kstaniek/canforge/internal/ir"
)

// IrSemanticError is returned when Layer-1 finds one or more issues. All
// issues are collected into a single batch before return; the validator
// never short-circuits.
type IrSemanticError struct {
	Issues Issues
}

func (e *IrSemanticError) Error() string {
	return fmt.Sprintf("ir semantic error: %d issue(s), first: %s", len(e.Issues), e.Issues[0])
}

// Category is the stable string used by report consumers to classify
// this error kind.
func (e *IrSemanticError) Category() string { return "IrSemanticError" }

// IrSchemaError is returned when Layer-0 finds one or more issues.
type IrSchemaError struct {
	Issues Issues
}

func (e *IrSchemaError) Error() string {
	return fmt.Sprintf("ir schema error: %d issue(s), first: %s", len(e.Issues), e.Issues[0])
}

// Category is the stable string used by report consumers to classify
// this error kind.
func (e *IrSchemaError) Category() string { return "IrSchemaError" }

// Validate runs Layer-0 then, only if it passes, Layer-1, returning a
// single error wrapping whichever layer's issues were found (nil if both
// passed). Passing Layer-0 is a precondition for Layer-1.
func Validate(s ir.Spec) error {
	if issues := Schema(s); !issues.Empty() {
		return &IrSchemaError{Issues: issues}
	}
	if issues := Semantic(s); !issues.Empty() {
		return &IrSemanticError{Issues: issues}
	}
	return nil
}
