// Package matcher compares JSON values against partially specified
// expectation trees.
//
// A tree is built from Node values. Object nodes match permissively: keys the
// actual value carries but the expectation does not mention are ignored, so a
// provider may grow its payloads without breaking existing contracts.
// Evaluation never stops at the first difference; every mismatch is reported
// with its path.
package matcher

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindLiteral  Kind = "literal"
	KindRegex    Kind = "regex"
	KindType     Kind = "type"
	KindIncludes Kind = "include"
	KindEachLike Kind = "eachLike"
	KindObject   Kind = "object"
	KindArray    Kind = "array"
)

// Node is one position of an expectation tree.
type Node interface {
	Kind() Kind
	// Example returns a concrete value satisfying the node. It is
	// deterministic for a given tree.
	Example() interface{}

	evaluate(p path, actual interface{}, r *Result)
}

type Literal struct {
	Value interface{}
}

type Regex struct {
	Pattern string
	Sample  string
	re      *regexp.Regexp
}

type Type struct {
	Sample interface{}
}

type Includes struct {
	Substring string
}

type EachLike struct {
	Template Node
	Min      int
}

type Object struct {
	Fields map[string]Node
}

type Array struct {
	Items []Node
}

func (Literal) Kind() Kind  { return KindLiteral }
func (Regex) Kind() Kind    { return KindRegex }
func (Type) Kind() Kind     { return KindType }
func (Includes) Kind() Kind { return KindIncludes }
func (EachLike) Kind() Kind { return KindEachLike }
func (Object) Kind() Kind   { return KindObject }
func (Array) Kind() Kind    { return KindArray }

func (n Literal) Example() interface{}  { return n.Value }
func (n Regex) Example() interface{}    { return n.Sample }
func (n Type) Example() interface{}     { return n.Sample }
func (n Includes) Example() interface{} { return n.Substring }

func (n EachLike) Example() interface{} {
	count := n.Min
	if count < 1 {
		count = 1
	}
	items := make([]interface{}, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, n.Template.Example())
	}
	return items
}

func (n Object) Example() interface{} {
	result := make(map[string]interface{}, len(n.Fields))
	for k, v := range n.Fields {
		result[k] = v.Example()
	}
	return result
}

func (n Array) Example() interface{} {
	result := make([]interface{}, 0, len(n.Items))
	for _, item := range n.Items {
		result = append(result, item.Example())
	}
	return result
}

// Lit matches a value by deep equality.
func Lit(v interface{}) Literal {
	return Literal{Value: normalize(v)}
}

// NewRegex builds a matcher that requires a string fully matching pattern.
func NewRegex(pattern, example string) (Regex, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return Regex{}, errors.Wrapf(err, "invalid regex matcher %q", pattern)
	}
	if !re.MatchString(example) {
		return Regex{}, fmt.Errorf("example %q does not match regex matcher %q", example, pattern)
	}
	return Regex{Pattern: pattern, Sample: example, re: re}, nil
}

// Term is NewRegex for expectations written in tests; it panics on a bad
// pattern the same way regexp.MustCompile does.
func Term(pattern, example string) Regex {
	r, err := NewRegex(pattern, example)
	if err != nil {
		panic(err)
	}
	return r
}

// Like matches any value of the same JSON type (and shape) as example.
func Like(example interface{}) Type {
	return Type{Sample: normalize(example)}
}

func Include(substring string) Includes {
	return Includes{Substring: substring}
}

// Each matches an array of at least minItems elements, each matching template.
func Each(template interface{}, minItems int) EachLike {
	if minItems < 0 {
		minItems = 0
	}
	return EachLike{Template: From(template), Min: minItems}
}

func Fields(fields map[string]interface{}) Object {
	result := Object{Fields: make(map[string]Node, len(fields))}
	for k, v := range fields {
		result.Fields[k] = From(v)
	}
	return result
}

func Items(items ...interface{}) Array {
	result := Array{Items: make([]Node, 0, len(items))}
	for _, item := range items {
		result.Items = append(result.Items, From(item))
	}
	return result
}

// normalize converts a Go value into its decoded JSON form so that, for
// example, int(42) and float64(42) compare equal.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, string, bool, float64:
		return val
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
