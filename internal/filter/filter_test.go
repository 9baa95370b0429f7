package filter

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondition_Matches(t *testing.T) {
	t.Parallel()

	doc := Metadata{
		"category": String("A"),
		"score":    Int(12),
		"ratio":    Float(0.5),
		"draft":    Bool(false),
		"path":     String("docs/guide.md"),
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq string", Eq("category", String("A")), true},
		{"eq string mismatch", Eq("category", String("B")), false},
		{"eq int vs float", Eq("score", Float(12)), true},
		{"eq type mismatch", Eq("score", String("12")), false},
		{"eq bool", Eq("draft", Bool(false)), true},
		{"ne", Ne("category", String("B")), true},
		{"gt int", Gt("score", Int(10)), true},
		{"gt equal is false", Gt("score", Int(12)), false},
		{"gte equal", Gte("score", Int(12)), true},
		{"lt float vs int", Lt("ratio", Int(1)), true},
		{"lte", Lte("ratio", Float(0.5)), true},
		{"gt string vs number", Gt("category", Int(1)), false},
		{"gt lexical", Gt("category", String("0")), true},
		{"in", In("category", String("X"), String("A")), true},
		{"in miss", In("category", String("X")), false},
		{"not in", NotIn("category", String("X")), true},
		{"exists", Exists("score"), true},
		{"not exists", NotExists("score"), false},
		{"contains", Contains("path", "guide"), true},
		{"starts with", StartsWith("path", "docs/"), true},
		{"ends with", EndsWith("path", ".txt"), false},
		{"contains on non-string", Contains("score", "1"), false},
		{"and", And(Eq("category", String("A")), Gt("score", Int(10))), true},
		{"and short", And(Eq("category", String("B")), Gt("score", Int(10))), false},
		{"or", Or(Eq("category", String("B")), Gt("score", Int(10))), true},
		{"or none", Or(Eq("category", String("B")), Gt("score", Int(100))), false},
		{"not", Not(Eq("category", String("B"))), true},
		{"empty and", And(), true},
		{"empty or", Or(), false},
		{"nested", Or(And(Eq("category", String("B"))), Not(Lt("score", Int(0)))), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cond.Matches(doc))
		})
	}
}

func TestCondition_AbsentField(t *testing.T) {
	t.Parallel()
	doc := Metadata{"category": String("A")}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq", Eq("missing", String("A")), false},
		{"gt", Gt("missing", Int(0)), false},
		{"lt", Lt("missing", Int(0)), false},
		{"in", In("missing", String("A")), false},
		{"contains", Contains("missing", "a"), false},
		{"exists", Exists("missing"), false},
		{"ne", Ne("missing", String("A")), true},
		{"not in", NotIn("missing", String("A")), true},
		{"not exists", NotExists("missing"), true},
		{"and with absent", And(Eq("category", String("A")), Gt("score", Int(10))), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cond.Matches(doc))
		})
	}
}

func TestCondition_NilMatchesEverything(t *testing.T) {
	t.Parallel()
	var c *Condition
	assert.True(t, c.Matches(nil))
	assert.True(t, c.Matches(Metadata{"a": Int(1)}))
}

func TestCondition_DeepNesting(t *testing.T) {
	t.Parallel()

	c := Eq("k", String("v"))
	for range 100_000 {
		c = Not(Not(c))
	}
	assert.True(t, c.Matches(Metadata{"k": String("v")}))
	assert.False(t, c.Matches(Metadata{"k": String("w")}))
	assert.NoError(t, c.Validate())
}

func TestParse_DeepNesting(t *testing.T) {
	t.Parallel()

	data := `{"eq":{"field":"c","value":"A"}}`
	for range 200 {
		data = `{"and":[` + data + `]}`
	}
	c, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.True(t, c.Matches(Metadata{"c": String("A")}))
	assert.False(t, c.Matches(Metadata{"c": String("B")}))
}

func TestCondition_StringQuotesFields(t *testing.T) {
	t.Parallel()

	// With bare field names both render as and(exists(a),exists(b)).
	a := And(Exists("a),exists(b"))
	b := And(Exists("a"), Exists("b"))
	assert.NotEqual(t, a.String(), b.String())

	c := And(Eq("category", String("A")), Gt("score", Int(10)))
	assert.Equal(t, `and(eq("category","A"),gt("score",10))`, c.String())
}

func TestCondition_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cond    Condition
		wantErr bool
	}{
		{"valid leaf", Eq("a", Int(1)), false},
		{"valid tree", And(Or(Exists("a")), Not(In("b", String("x")))), false},
		{"missing field", Eq("", Int(1)), true},
		{"missing value", Condition{Op: OpGt, Field: "a"}, true},
		{"contains needs string", Condition{Op: OpContains, Field: "a", Value: Int(1)}, true},
		{"not arity", Condition{Op: OpNot}, true},
		{"unknown op", Condition{Op: "near", Field: "a"}, true},
		{"invalid nested", And(Eq("a", Int(1)), Condition{Op: OpLt, Field: "b"}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cond.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidFilter), "want ErrInvalidFilter, got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	c, err := Parse([]byte(`{"and":[{"eq":{"field":"category","value":"A"}},{"gt":{"field":"score","value":10}}]}`))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, OpAnd, c.Op)
	require.Len(t, c.Conditions, 2)
	assert.Equal(t, Int(10), c.Conditions[1].Value)

	assert.True(t, c.Matches(Metadata{"category": String("A"), "score": Int(11)}))
	assert.False(t, c.Matches(Metadata{"category": String("A")}))

	c, err = Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`{}`,
		`{"eq":{"field":"a","value":1},"ne":{"field":"a","value":1}}`,
		`{"eq":{"field":"a"}}`,
		`{"eq":{"field":"a","value":[1,2]}}`,
		`{"between":{"field":"a","value":1}}`,
		`{"not":[]}`,
		`[1,2]`,
	}
	for _, in := range inputs {
		_, err := Parse([]byte(in))
		assert.Error(t, err, "input %s", in)
	}
}

func TestCondition_JSONShape(t *testing.T) {
	t.Parallel()

	c := And(Eq("category", String("A")), Not(In("lang", String("go"), Int(2))), Exists("x"))
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"and":[{"eq":{"field":"category","value":"A"}},{"not":{"in":{"field":"lang","values":["go",2]}}},{"exists":{"field":"x"}}]}`,
		string(data))

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, c.String(), back.String())
}

func TestValue_JSON(t *testing.T) {
	t.Parallel()

	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"s":"x","i":3,"f":2.5,"e":1e3,"b":true}`), &md))
	assert.Equal(t, String("x"), md["s"])
	assert.Equal(t, Int(3), md["i"])
	assert.Equal(t, Float(2.5), md["f"])
	assert.Equal(t, Float(1000), md["e"])
	assert.Equal(t, Bool(true), md["b"])

	data, err := json.Marshal(Metadata{"f": Float(2)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"f":2.0}`, string(data))

	var v Value
	err = json.Unmarshal([]byte(`null`), &v)
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestFromAny(t *testing.T) {
	t.Parallel()

	md, err := MetadataFromMap(map[string]any{"a": 1, "b": "x", "c": 1.5, "d": true, "e": json.Number("7")})
	require.NoError(t, err)
	assert.Equal(t, Int(1), md["a"])
	assert.Equal(t, String("x"), md["b"])
	assert.Equal(t, Float(1.5), md["c"])
	assert.Equal(t, Bool(true), md["d"])
	assert.Equal(t, Int(7), md["e"])

	_, err = MetadataFromMap(map[string]any{"bad": []string{"x"}})
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestCondition_Walk(t *testing.T) {
	t.Parallel()

	c := And(Eq("a", Int(1)), Or(Exists("b"), Not(Exists("c"))))
	var fields []string
	require.NoError(t, c.Walk(func(n *Condition) error {
		if n.Field != "" {
			fields = append(fields, n.Field)
		}
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c"}, fields)
}
