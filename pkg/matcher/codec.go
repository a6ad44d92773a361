package matcher

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

const kindKey = "kind"

// Encode converts a tree into its contract wire form. Plain JSON objects and
// arrays stand for Object and Array nodes, bare scalars for literals, and
// every other node is written as metadata carrying a "kind" key.
func Encode(n Node) interface{} {
	switch node := n.(type) {
	case nil:
		return nil
	case Literal:
		value := normalize(node.Value)
		switch value.(type) {
		case map[string]interface{}, []interface{}:
			return map[string]interface{}{kindKey: string(KindLiteral), "value": value}
		}
		return value
	case Regex:
		return map[string]interface{}{kindKey: string(KindRegex), "pattern": node.Pattern, "example": node.Sample}
	case Type:
		return map[string]interface{}{kindKey: string(KindType), "example": normalize(node.Sample)}
	case Includes:
		return map[string]interface{}{kindKey: string(KindIncludes), "value": node.Substring}
	case EachLike:
		return map[string]interface{}{kindKey: string(KindEachLike), "min": node.Min, "template": Encode(node.Template)}
	case Object:
		fields := make(map[string]interface{}, len(node.Fields))
		for k, v := range node.Fields {
			fields[k] = Encode(v)
		}
		if _, clash := node.Fields[kindKey]; clash {
			return map[string]interface{}{kindKey: string(KindObject), "fields": fields}
		}
		return fields
	case Array:
		items := make([]interface{}, 0, len(node.Items))
		for _, item := range node.Items {
			items = append(items, Encode(item))
		}
		return items
	}
	return nil
}

// Decode rebuilds a tree from its wire form, see Encode.
func Decode(raw interface{}) (Node, error) {
	switch val := raw.(type) {
	case []interface{}:
		items := make([]Node, 0, len(val))
		for i, item := range val {
			node, err := Decode(item)
			if err != nil {
				return nil, errors.Wrapf(err, "item %d", i)
			}
			items = append(items, node)
		}
		return Array{Items: items}, nil
	case map[string]interface{}:
		if kind, ok := val[kindKey].(string); ok && isKnownKind(Kind(kind)) {
			return decodeMatcher(Kind(kind), val)
		}
		return decodeFields(val)
	}
	return Lit(raw), nil
}

func decodeFields(raw map[string]interface{}) (Object, error) {
	obj := Object{Fields: make(map[string]Node, len(raw))}
	for _, k := range sortedKeys(raw) {
		node, err := Decode(raw[k])
		if err != nil {
			return Object{}, errors.Wrapf(err, "field %q", k)
		}
		obj.Fields[k] = node
	}
	return obj, nil
}

func decodeMatcher(kind Kind, raw map[string]interface{}) (Node, error) {
	switch kind {
	case KindLiteral:
		value, ok := raw["value"]
		if !ok {
			return nil, errors.New("literal matcher has no value")
		}
		return Lit(value), nil
	case KindRegex:
		pattern, ok := raw["pattern"].(string)
		if !ok {
			return nil, errors.New("regex matcher has no pattern")
		}
		example, ok := raw["example"].(string)
		if !ok {
			return nil, errors.New("regex matcher has no string example")
		}
		return NewRegex(pattern, example)
	case KindType:
		example, ok := raw["example"]
		if !ok {
			return nil, errors.New("type matcher has no example")
		}
		return Like(example), nil
	case KindIncludes:
		value, ok := raw["value"].(string)
		if !ok {
			return nil, errors.New("include matcher has no string value")
		}
		return Include(value), nil
	case KindEachLike:
		minItems := 0
		if m, ok := raw["min"]; ok {
			f, ok := m.(float64)
			if !ok || f < 0 || f != float64(int(f)) {
				return nil, fmt.Errorf("eachLike matcher has invalid min %v", m)
			}
			minItems = int(f)
		}
		tmpl, ok := raw["template"]
		if !ok {
			return nil, errors.New("eachLike matcher has no template")
		}
		node, err := Decode(tmpl)
		if err != nil {
			return nil, errors.Wrap(err, "eachLike template")
		}
		return EachLike{Template: node, Min: minItems}, nil
	case KindObject:
		fields, ok := raw["fields"].(map[string]interface{})
		if !ok {
			return nil, errors.New("object matcher has no fields")
		}
		return decodeFields(fields)
	case KindArray:
		items, ok := raw["items"].([]interface{})
		if !ok {
			return nil, errors.New("array matcher has no items")
		}
		return Decode(items)
	}
	return nil, fmt.Errorf("unknown matcher kind %q", kind)
}

func isKnownKind(k Kind) bool {
	switch k {
	case KindLiteral, KindRegex, KindType, KindIncludes, KindEachLike, KindObject, KindArray:
		return true
	}
	return false
}

// MarshalNode returns the JSON wire form of n.
func MarshalNode(n Node) ([]byte, error) {
	return json.Marshal(Encode(n))
}

// UnmarshalNode parses the JSON wire form produced by MarshalNode.
func UnmarshalNode(data []byte) (Node, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "unable to parse matcher")
	}
	return Decode(raw)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
