package mockserver

import (
	"net/http"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/pkg/errors"
)

type renderedResponse struct {
	status int
	header http.Header
	body   []byte
}

// renderResponse builds the response an interaction serves from the examples
// of its response matchers, then applies the interaction's modifiers.
func (i *Interaction) renderResponse() (*renderedResponse, error) {
	spec := i.definition.Response
	res := &renderedResponse{
		status: spec.Status,
		header: http.Header{},
	}

	for name, node := range spec.Headers {
		res.header.Set(name, contract.ExampleText(node.Example()))
	}

	if spec.Body != nil {
		if res.header.Get("Content-Type") == "" {
			res.header.Set("Content-Type", mediaTypeJSON)
		}
		body, err := contract.ExampleBody(res.header.Get("Content-Type"), spec.Body.Example())
		if err != nil {
			return nil, errors.Wrapf(err, "unable to render body of interaction '%s'", i.Description)
		}
		res.body = body
	}

	status, body, err := i.modifiers.apply(res.status, res.body)
	if err != nil {
		return nil, err
	}
	res.status = status
	res.body = body
	return res, nil
}
