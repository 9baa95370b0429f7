package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidFilter is returned by Validate and by JSON decoding for malformed
// conditions.
var ErrInvalidFilter = errors.New("filter: invalid condition")

// Op is a condition operator.
type Op string

const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpIn         Op = "in"
	OpNotIn      Op = "not_in"
	OpExists     Op = "exists"
	OpNotExists  Op = "not_exists"
	OpContains   Op = "contains"
	OpStartsWith Op = "starts_with"
	OpEndsWith   Op = "ends_with"
	OpAnd        Op = "and"
	OpOr         Op = "or"
	OpNot        Op = "not"
)

// IsLogical reports whether op combines child conditions.
func (op Op) IsLogical() bool {
	return op == OpAnd || op == OpOr || op == OpNot
}

// Condition is a predicate over Metadata. Leaf conditions compare a single
// field; And, Or and Not combine child conditions.
type Condition struct {
	Op         Op
	Field      string
	Value      Value
	Values     []Value
	Conditions []Condition
}

// Eq matches documents whose field equals v. Ints and floats compare by value.
func Eq(field string, v Value) Condition { return Condition{Op: OpEq, Field: field, Value: v} }

// Ne matches documents whose field is absent or differs from v.
func Ne(field string, v Value) Condition { return Condition{Op: OpNe, Field: field, Value: v} }

// Gt matches documents whose field is strictly greater than v.
func Gt(field string, v Value) Condition { return Condition{Op: OpGt, Field: field, Value: v} }

func Gte(field string, v Value) Condition { return Condition{Op: OpGte, Field: field, Value: v} }

func Lt(field string, v Value) Condition { return Condition{Op: OpLt, Field: field, Value: v} }

func Lte(field string, v Value) Condition { return Condition{Op: OpLte, Field: field, Value: v} }

// In matches documents whose field equals any of vs.
func In(field string, vs ...Value) Condition { return Condition{Op: OpIn, Field: field, Values: vs} }

// NotIn matches documents whose field is absent or equals none of vs.
func NotIn(field string, vs ...Value) Condition {
	return Condition{Op: OpNotIn, Field: field, Values: vs}
}

func Exists(field string) Condition    { return Condition{Op: OpExists, Field: field} }
func NotExists(field string) Condition { return Condition{Op: OpNotExists, Field: field} }

// Contains matches string fields containing the substring s.
func Contains(field, s string) Condition {
	return Condition{Op: OpContains, Field: field, Value: String(s)}
}

func StartsWith(field, s string) Condition {
	return Condition{Op: OpStartsWith, Field: field, Value: String(s)}
}

func EndsWith(field, s string) Condition {
	return Condition{Op: OpEndsWith, Field: field, Value: String(s)}
}

// And matches when every child matches. An empty And matches everything.
func And(cs ...Condition) Condition { return Condition{Op: OpAnd, Conditions: cs} }

// Or matches when any child matches. An empty Or matches nothing.
func Or(cs ...Condition) Condition { return Condition{Op: OpOr, Conditions: cs} }

// Not inverts c.
func Not(c Condition) Condition { return Condition{Op: OpNot, Conditions: []Condition{c}} }

// Validate checks operator arity and value presence. Nesting depth is not
// limited. A nil condition is valid.
func (c *Condition) Validate() error {
	if c == nil {
		return nil
	}
	stack := []*Condition{c}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := cur.validateNode(); err != nil {
			return err
		}
		for i := range cur.Conditions {
			stack = append(stack, &cur.Conditions[i])
		}
	}
	return nil
}

func (c *Condition) validateNode() error {
	switch c.Op {
	case OpAnd, OpOr:
		return nil
	case OpNot:
		if len(c.Conditions) != 1 {
			return fmt.Errorf("%w: not takes exactly one condition, got %d", ErrInvalidFilter, len(c.Conditions))
		}
		return nil
	}

	if c.Field == "" {
		return fmt.Errorf("%w: %s requires a field", ErrInvalidFilter, c.Op)
	}
	switch c.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		if !c.Value.IsValid() {
			return fmt.Errorf("%w: %s on %q requires a value", ErrInvalidFilter, c.Op, c.Field)
		}
	case OpContains, OpStartsWith, OpEndsWith:
		if c.Value.Kind() != KindString {
			return fmt.Errorf("%w: %s on %q requires a string value", ErrInvalidFilter, c.Op, c.Field)
		}
	case OpIn, OpNotIn:
		for _, v := range c.Values {
			if !v.IsValid() {
				return fmt.Errorf("%w: %s on %q has an invalid value", ErrInvalidFilter, c.Op, c.Field)
			}
		}
	case OpExists, OpNotExists:
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, c.Op)
	}
	return nil
}

// Matches evaluates c against md. A nil condition matches everything.
//
// Evaluation walks an explicit stack so arbitrarily deep input cannot
// exhaust the goroutine stack. And and Or short-circuit.
func (c *Condition) Matches(md Metadata) bool {
	if c == nil {
		return true
	}

	type frame struct {
		c    *Condition
		next int
		acc  bool
	}
	newFrame := func(c *Condition) frame {
		// And starts true and Or starts false; Not is set by its child.
		return frame{c: c, acc: c.Op == OpAnd}
	}

	stack := []frame{newFrame(c)}
	var result, returning bool
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if returning {
			switch top.c.Op {
			case OpAnd:
				top.acc = top.acc && result
			case OpOr:
				top.acc = top.acc || result
			case OpNot:
				top.acc = !result
			}
			returning = false
		}

		var done bool
		switch top.c.Op {
		case OpAnd:
			done = !top.acc || top.next >= len(top.c.Conditions)
		case OpOr:
			done = top.acc || top.next >= len(top.c.Conditions)
		case OpNot:
			done = top.next > 0 || len(top.c.Conditions) == 0
		default:
			top.acc = top.c.matchLeaf(md)
			done = true
		}

		if done {
			result = top.acc
			stack = stack[:len(stack)-1]
			returning = true
			continue
		}
		child := &top.c.Conditions[top.next]
		top.next++
		stack = append(stack, newFrame(child))
	}
	return result
}

func (c *Condition) matchLeaf(md Metadata) bool {
	v, ok := md[c.Field]
	if !ok {
		switch c.Op {
		case OpNe, OpNotIn, OpNotExists:
			return true
		default:
			return false
		}
	}

	switch c.Op {
	case OpEq:
		return equal(v, c.Value)
	case OpNe:
		return !equal(v, c.Value)
	case OpGt:
		n, ok := compare(v, c.Value)
		return ok && n > 0
	case OpGte:
		n, ok := compare(v, c.Value)
		return ok && n >= 0
	case OpLt:
		n, ok := compare(v, c.Value)
		return ok && n < 0
	case OpLte:
		n, ok := compare(v, c.Value)
		return ok && n <= 0
	case OpIn:
		return containsValue(c.Values, v)
	case OpNotIn:
		return !containsValue(c.Values, v)
	case OpExists:
		return true
	case OpNotExists:
		return false
	case OpContains, OpStartsWith, OpEndsWith:
		s, ok := v.AsString()
		if !ok {
			return false
		}
		needle, _ := c.Value.AsString()
		switch c.Op {
		case OpContains:
			return strings.Contains(s, needle)
		case OpStartsWith:
			return strings.HasPrefix(s, needle)
		default:
			return strings.HasSuffix(s, needle)
		}
	default:
		return false
	}
}

func containsValue(vs []Value, v Value) bool {
	for _, candidate := range vs {
		if equal(v, candidate) {
			return true
		}
	}
	return false
}

// Walk visits c and every nested condition depth-first, in order. It stops
// at the first error returned by fn.
func (c *Condition) Walk(fn func(*Condition) error) error {
	if c == nil {
		return nil
	}
	stack := []*Condition{c}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := fn(cur); err != nil {
			return err
		}
		for i := len(cur.Conditions) - 1; i >= 0; i-- {
			stack = append(stack, &cur.Conditions[i])
		}
	}
	return nil
}

// String renders c in a compact prefix form, e.g. and(eq("category","A"),gt("score",10)).
// Field names are quoted so distinct conditions never render alike.
func (c *Condition) String() string {
	if c == nil {
		return ""
	}
	var sb strings.Builder
	c.writeTo(&sb)
	return sb.String()
}

func (c *Condition) writeTo(sb *strings.Builder) {
	sb.WriteString(string(c.Op))
	sb.WriteByte('(')
	switch {
	case c.Op.IsLogical():
		for i := range c.Conditions {
			if i > 0 {
				sb.WriteByte(',')
			}
			c.Conditions[i].writeTo(sb)
		}
	default:
		sb.WriteString(strconv.Quote(c.Field))
		switch c.Op {
		case OpIn, OpNotIn:
			sb.WriteString(",[")
			for i, v := range c.Values {
				if i > 0 {
					sb.WriteByte(',')
				}
				sb.WriteString(v.String())
			}
			sb.WriteByte(']')
		case OpExists, OpNotExists:
		default:
			sb.WriteByte(',')
			sb.WriteString(c.Value.String())
		}
	}
	sb.WriteByte(')')
}
