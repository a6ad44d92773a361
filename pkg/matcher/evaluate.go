package matcher

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

const RootPath = "$"

// Mismatch describes one position where the actual value broke the
// expectation.
type Mismatch struct {
	Path     string      `json:"path"`
	Expected string      `json:"expected"`
	Actual   interface{} `json:"actual"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: expected %s but got %s", m.Path, m.Expected, describe(m.Actual))
}

type Result struct {
	Mismatches []Mismatch
}

func (r Result) OK() bool {
	return len(r.Mismatches) == 0
}

func (r *Result) add(p path, expected string, actual interface{}) {
	r.Mismatches = append(r.Mismatches, Mismatch{Path: string(p), Expected: expected, Actual: actual})
}

// Evaluate compares actual against node, rooting mismatch paths at "$".
func Evaluate(node Node, actual interface{}) Result {
	return EvaluateAt(RootPath, node, actual)
}

// EvaluateAt is Evaluate with mismatch paths rooted at root, e.g. "body".
func EvaluateAt(root string, node Node, actual interface{}) Result {
	var r Result
	if node == nil {
		return r
	}
	node.evaluate(path(root), normalize(actual), &r)
	return r
}

type path string

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

func (p path) key(k string) path {
	if identifier.MatchString(k) {
		return path(string(p) + "." + k)
	}
	return path(fmt.Sprintf("%s[%q]", p, k))
}

func (p path) index(i int) path {
	return path(fmt.Sprintf("%s[%d]", p, i))
}

func (n Literal) evaluate(p path, actual interface{}, r *Result) {
	expected := normalize(n.Value)
	if !reflect.DeepEqual(expected, actual) {
		r.add(p, "value "+describe(expected), actual)
	}
}

func (n Regex) evaluate(p path, actual interface{}, r *Result) {
	s, ok := actual.(string)
	if !ok {
		r.add(p, fmt.Sprintf("a string matching /%s/", n.Pattern), actual)
		return
	}
	re := n.re
	if re == nil {
		var err error
		re, err = regexp.Compile("^(?:" + n.Pattern + ")$")
		if err != nil {
			r.add(p, fmt.Sprintf("a valid regex /%s/", n.Pattern), actual)
			return
		}
	}
	if !re.MatchString(s) {
		r.add(p, fmt.Sprintf("a string matching /%s/", n.Pattern), actual)
	}
}

func (n Type) evaluate(p path, actual interface{}, r *Result) {
	matchShape(p, normalize(n.Sample), actual, r)
}

func matchShape(p path, example, actual interface{}, r *Result) {
	expectedType, actualType := jsonType(example), jsonType(actual)
	if expectedType != actualType {
		r.add(p, "a value of type "+expectedType, actual)
		return
	}

	switch ex := example.(type) {
	case map[string]interface{}:
		act := actual.(map[string]interface{})
		for _, k := range sortedKeys(ex) {
			v, ok := act[k]
			if !ok {
				r.add(p.key(k), "a value of type "+jsonType(ex[k]), nil)
				continue
			}
			matchShape(p.key(k), ex[k], v, r)
		}
	case []interface{}:
		if len(ex) == 0 {
			return
		}
		for i, v := range actual.([]interface{}) {
			matchShape(p.index(i), ex[0], v, r)
		}
	}
}

func (n Includes) evaluate(p path, actual interface{}, r *Result) {
	s, ok := actual.(string)
	if !ok || !strings.Contains(s, n.Substring) {
		r.add(p, fmt.Sprintf("a string including %q", n.Substring), actual)
	}
}

func (n EachLike) evaluate(p path, actual interface{}, r *Result) {
	items, ok := actual.([]interface{})
	if !ok {
		r.add(p, fmt.Sprintf("an array of at least %d item(s)", n.Min), actual)
		return
	}
	if len(items) < n.Min {
		r.add(p, fmt.Sprintf("an array of at least %d item(s)", n.Min), actual)
	}
	if n.Template == nil {
		return
	}
	for i, item := range items {
		n.Template.evaluate(p.index(i), item, r)
	}
}

func (n Object) evaluate(p path, actual interface{}, r *Result) {
	obj, ok := actual.(map[string]interface{})
	if !ok {
		r.add(p, "an object", actual)
		return
	}
	for _, k := range sortedKeys(n.Fields) {
		child := n.Fields[k]
		v, present := obj[k]
		if !present {
			r.add(p.key(k), describeNode(child), nil)
			continue
		}
		child.evaluate(p.key(k), v, r)
	}
}

func (n Array) evaluate(p path, actual interface{}, r *Result) {
	items, ok := actual.([]interface{})
	if !ok {
		r.add(p, fmt.Sprintf("an array of %d item(s)", len(n.Items)), actual)
		return
	}
	if len(items) != len(n.Items) {
		r.add(p, fmt.Sprintf("an array of %d item(s)", len(n.Items)), actual)
	}
	for i, item := range n.Items {
		if i >= len(items) {
			break
		}
		item.evaluate(p.index(i), items[i], r)
	}
}

func describeNode(n Node) string {
	switch node := n.(type) {
	case Literal:
		return "value " + describe(node.Value)
	case Regex:
		return fmt.Sprintf("a string matching /%s/", node.Pattern)
	case Type:
		return "a value of type " + jsonType(node.Sample)
	case Includes:
		return fmt.Sprintf("a string including %q", node.Substring)
	case EachLike:
		return fmt.Sprintf("an array of at least %d item(s)", node.Min)
	case Object:
		return "an object"
	case Array:
		return fmt.Sprintf("an array of %d item(s)", len(node.Items))
	}
	return "a value"
}

func jsonType(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func describe(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	}
	return fmt.Sprintf("%v", v)
}
