package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/form3tech-oss/pact-contract/pkg/matcher"
	"github.com/pkg/errors"
)

// Identity is what makes an interaction unique inside a contract.
type Identity struct {
	Description   string `json:"description"`
	ProviderState string `json:"providerState,omitempty"`
}

func (i Identity) String() string {
	if i.ProviderState == "" {
		return fmt.Sprintf("%q", i.Description)
	}
	return fmt.Sprintf("%q given %q", i.Description, i.ProviderState)
}

type RequestSpec struct {
	Method  string
	Path    matcher.Node
	Query   map[string]matcher.Node
	Headers map[string]matcher.Node
	Body    matcher.Node
}

type ResponseSpec struct {
	Status  int
	Headers map[string]matcher.Node
	Body    matcher.Node
}

type Interaction struct {
	Description   string       `json:"description"`
	ProviderState string       `json:"providerState,omitempty"`
	Request       RequestSpec  `json:"request"`
	Response      ResponseSpec `json:"response"`
}

func (i Interaction) Identity() Identity {
	return Identity{Description: i.Description, ProviderState: i.ProviderState}
}

func (i Interaction) Validate() error {
	if strings.TrimSpace(i.Description) == "" {
		return errors.New("interaction has no description")
	}
	if i.Request.Method == "" {
		return errors.Errorf("interaction %s has no request method", i.Identity())
	}
	if i.Request.Path == nil {
		return errors.Errorf("interaction %s has no request path", i.Identity())
	}
	if i.Response.Status < 100 || i.Response.Status > 599 {
		return errors.Errorf("interaction %s has invalid response status %d", i.Identity(), i.Response.Status)
	}
	return nil
}

// PathExample is the concrete path a real request for this interaction uses.
func (r RequestSpec) PathExample() string {
	if r.Path == nil {
		return "/"
	}
	return fmt.Sprintf("%v", r.Path.Example())
}

type requestWire struct {
	Method  string                 `json:"method"`
	Path    interface{}            `json:"path"`
	Query   map[string]interface{} `json:"query,omitempty"`
	Headers map[string]interface{} `json:"headers,omitempty"`
	Body    json.RawMessage        `json:"body,omitempty"`
}

type responseWire struct {
	Status  int                    `json:"status"`
	Headers map[string]interface{} `json:"headers,omitempty"`
	Body    json.RawMessage        `json:"body,omitempty"`
}

func (r RequestSpec) MarshalJSON() ([]byte, error) {
	body, err := encodeBody(r.Body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(requestWire{
		Method:  strings.ToUpper(r.Method),
		Path:    matcher.Encode(r.Path),
		Query:   encodeMap(r.Query),
		Headers: encodeMap(r.Headers),
		Body:    body,
	})
}

func (r *RequestSpec) UnmarshalJSON(data []byte) error {
	var wire requestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.Wrap(err, "unable to parse request")
	}

	path, err := matcher.Decode(wire.Path)
	if err != nil {
		return errors.Wrap(err, "unable to parse request path")
	}
	query, err := decodeMap(wire.Query)
	if err != nil {
		return errors.Wrap(err, "unable to parse request query")
	}
	headers, err := decodeMap(wire.Headers)
	if err != nil {
		return errors.Wrap(err, "unable to parse request headers")
	}
	body, err := decodeBody(wire.Body)
	if err != nil {
		return errors.Wrap(err, "unable to parse request body")
	}

	*r = RequestSpec{
		Method:  strings.ToUpper(wire.Method),
		Path:    path,
		Query:   query,
		Headers: headers,
		Body:    body,
	}
	return nil
}

func (r ResponseSpec) MarshalJSON() ([]byte, error) {
	body, err := encodeBody(r.Body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(responseWire{
		Status:  r.Status,
		Headers: encodeMap(r.Headers),
		Body:    body,
	})
}

func (r *ResponseSpec) UnmarshalJSON(data []byte) error {
	var wire responseWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.Wrap(err, "unable to parse response")
	}

	headers, err := decodeMap(wire.Headers)
	if err != nil {
		return errors.Wrap(err, "unable to parse response headers")
	}
	body, err := decodeBody(wire.Body)
	if err != nil {
		return errors.Wrap(err, "unable to parse response body")
	}

	*r = ResponseSpec{Status: wire.Status, Headers: headers, Body: body}
	return nil
}

func encodeMap(nodes map[string]matcher.Node) map[string]interface{} {
	if len(nodes) == 0 {
		return nil
	}
	result := make(map[string]interface{}, len(nodes))
	for k, v := range nodes {
		result[k] = matcher.Encode(v)
	}
	return result
}

func decodeMap(raw map[string]interface{}) (map[string]matcher.Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	result := make(map[string]matcher.Node, len(raw))
	for k, v := range raw {
		node, err := matcher.Decode(v)
		if err != nil {
			return nil, errors.Wrapf(err, "%q", k)
		}
		result[k] = node
	}
	return result, nil
}

// encodeBody keeps an explicit null body distinct from an absent one.
func encodeBody(body matcher.Node) (json.RawMessage, error) {
	if body == nil {
		return nil, nil
	}
	return matcher.MarshalNode(body)
}

func decodeBody(raw json.RawMessage) (matcher.Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return matcher.UnmarshalNode(raw)
}
