package mockserver

import (
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/pkg/errors"
)

const fmtLen = "_length_"

// Constraint is an extra assertion a consumer test places on the requests an
// interaction receives, on top of what the contract itself requires. Path is
// a JSONPath over the request document, e.g. "$.body.name" or
// "$.headers.Authorization".
type Constraint struct {
	Interaction string        `json:"interaction"`
	Path        string        `json:"path"`
	Values      []interface{} `json:"values"`
	Format      string        `json:"format"`
	Source      string        `json:"source"`
}

func (c Constraint) validate() error {
	if c.Interaction == "" || c.Path == "" {
		return errors.New("constraint needs an interaction and a path")
	}
	if c.Format == fmtLen && c.Source == "" && len(c.Values) != 1 {
		return errors.Errorf("length constraint on %q needs exactly one value", c.Path)
	}
	return nil
}

func (c Constraint) Key() string {
	return strings.Join([]string{c.Interaction, c.Path}, "_")
}

func (c Constraint) check(expectedValues []interface{}, actualValue interface{}) error {
	if c.Format == fmtLen {
		if len(expectedValues) != 1 {
			return fmt.Errorf(
				"expected single positive integer value for path %q length constraint, but there are %v expected values",
				c.Path, len(expectedValues))
		}
		expected, ok := toInt(expectedValues[0])
		if !ok || expected < 0 {
			return fmt.Errorf("expected value for %q length constraint must be a positive integer", c.Path)
		}

		actualSlice, ok := actualValue.([]interface{})
		if !ok {
			return fmt.Errorf("value at path %q must be an array due to length constraint", c.Path)
		}
		if expected != len(actualSlice) {
			return fmt.Errorf("value of length %v at path %q does not match length constraint %v",
				len(actualSlice), c.Path, expected)
		}
		return nil
	}

	expected := fmt.Sprintf(c.Format, expectedValues...)
	actual := fmt.Sprintf("%v", actualValue)
	if actualValue == nil {
		actual = ""
	}
	if expected != actual {
		return fmt.Errorf("value %q at path %q does not match constraint %q", actual, c.Path, expected)
	}
	return nil
}

// evaluate resolves the constraint against request. Values of a sourced
// constraint are JSONPath expressions over the source interaction's last
// request.
func (c Constraint) evaluate(request requestDocument, interactions *Interactions) error {
	values := c.Values
	if c.Source != "" {
		var err error
		values, err = c.loadValuesFromSource(interactions)
		if err != nil {
			return err
		}
	}

	actual, err := jsonpath.Get(request.encodeValues(c.Path), map[string]interface{}(request))
	if err != nil {
		actual = nil
	}
	return c.check(values, actual)
}

func (c Constraint) loadValuesFromSource(interactions *Interactions) ([]interface{}, error) {
	source, ok := interactions.Load(c.Source)
	if !ok {
		return nil, errors.Errorf("cannot find source interaction '%s' for constraint", c.Source)
	}

	sourceRequest := source.lastRequest()
	if sourceRequest == nil {
		return nil, errors.Errorf("source interaction '%s' has no requests", c.Source)
	}

	values := make([]interface{}, len(c.Values))
	for i, v := range c.Values {
		expr, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("constraint value %v for source '%s' is not a JSONPath", v, c.Source)
		}
		values[i], _ = jsonpath.Get(expr, map[string]interface{}(sourceRequest))
	}
	return values, nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), n == float64(int(n))
	}
	return 0, false
}
