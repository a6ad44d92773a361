package matcher

// From lifts a plain Go value into a matcher tree. Nodes embedded anywhere
// in v are kept as they are; maps become permissive Object nodes, slices
// become positional Array nodes and everything else a Literal.
func From(v interface{}) Node {
	switch val := v.(type) {
	case Node:
		return val
	case map[string]interface{}:
		return Fields(val)
	case []interface{}:
		return Items(val...)
	case map[string]Node:
		return Object{Fields: val}
	case []Node:
		return Array{Items: val}
	case map[string]string:
		fields := make(map[string]Node, len(val))
		for k, s := range val {
			fields[k] = Lit(s)
		}
		return Object{Fields: fields}
	}

	normalized := normalize(v)
	switch normalized.(type) {
	case map[string]interface{}, []interface{}:
		return From(normalized)
	}
	return Lit(normalized)
}

// Nodes lifts every value of a header or query style mapping.
func Nodes(values map[string]interface{}) map[string]Node {
	if values == nil {
		return nil
	}
	result := make(map[string]Node, len(values))
	for k, v := range values {
		result[k] = From(v)
	}
	return result
}
