package contract

import (
	"encoding/json"
	"fmt"
	"strings"
)

const MediaTypeJSON = "application/json"

// IsJSONMediaType reports whether a Content-Type value names JSON, including
// structured suffixes such as application/problem+json.
func IsJSONMediaType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	return mediaType == MediaTypeJSON || strings.HasSuffix(mediaType, "+json")
}

// ExampleBody encodes a body example for the wire. A string example is sent
// as is unless the content type is JSON.
func ExampleBody(contentType string, example interface{}) ([]byte, error) {
	if s, ok := example.(string); ok && !IsJSONMediaType(contentType) {
		return []byte(s), nil
	}
	return json.Marshal(example)
}

// ExampleText renders a header or query example as a single string.
func ExampleText(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
