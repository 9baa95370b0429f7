package filter

import (
	"encoding/json"
	"fmt"
)

// leafJSON is the operand object of a leaf condition.
type leafJSON struct {
	Field  string  `json:"field"`
	Value  *Value  `json:"value,omitempty"`
	Values []Value `json:"values,omitempty"`
}

// MarshalJSON encodes c as a single-key object naming the operator:
//
//	{"eq":{"field":"category","value":"A"}}
//	{"in":{"field":"lang","values":["go","rust"]}}
//	{"and":[{...},{...}]}
//	{"not":{...}}
func (c Condition) MarshalJSON() ([]byte, error) {
	var operand any
	switch c.Op {
	case OpAnd, OpOr:
		children := c.Conditions
		if children == nil {
			children = []Condition{}
		}
		operand = children
	case OpNot:
		if len(c.Conditions) != 1 {
			return nil, fmt.Errorf("%w: not takes exactly one condition", ErrInvalidFilter)
		}
		operand = c.Conditions[0]
	case OpIn, OpNotIn:
		values := c.Values
		if values == nil {
			values = []Value{}
		}
		operand = leafJSON{Field: c.Field, Values: values}
	case OpExists, OpNotExists:
		operand = leafJSON{Field: c.Field}
	case "":
		return nil, fmt.Errorf("%w: missing operator", ErrInvalidFilter)
	default:
		v := c.Value
		operand = leafJSON{Field: c.Field, Value: &v}
	}
	return json.Marshal(map[Op]any{c.Op: operand})
}

// UnmarshalJSON decodes the form written by MarshalJSON and validates the
// result.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var obj map[Op]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("%w: expected exactly one operator key, got %d", ErrInvalidFilter, len(obj))
	}

	var out Condition
	for op, raw := range obj {
		out.Op = op
		switch op {
		case OpAnd, OpOr:
			if err := json.Unmarshal(raw, &out.Conditions); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidFilter, op, err)
			}
		case OpNot:
			var child Condition
			if err := json.Unmarshal(raw, &child); err != nil {
				return fmt.Errorf("%w: not: %w", ErrInvalidFilter, err)
			}
			out.Conditions = []Condition{child}
		default:
			var leaf leafJSON
			if err := json.Unmarshal(raw, &leaf); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidFilter, op, err)
			}
			out.Field = leaf.Field
			out.Values = leaf.Values
			if leaf.Value != nil {
				out.Value = *leaf.Value
			}
		}
	}

	if err := out.validateNode(); err != nil {
		return err
	}
	*c = out
	return nil
}

// Parse decodes a JSON condition. Empty input yields a nil condition.
func Parse(data []byte) (*Condition, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var c Condition
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
