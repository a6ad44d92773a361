package consumer

import (
	"strings"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/form3tech-oss/pact-contract/pkg/matcher"
	"github.com/pkg/errors"
)

// Request describes what the consumer sends. Every field takes plain values
// or matcher nodes, e.g. Path: matcher.Term(`/orders/\d+`, "/orders/42").
type Request struct {
	Method  string
	Path    interface{}
	Query   map[string]interface{}
	Headers map[string]interface{}
	Body    interface{}
}

// Response describes what the consumer expects back.
type Response struct {
	Status  int
	Headers map[string]interface{}
	Body    interface{}
}

type Interaction struct {
	interaction contract.Interaction
	err         error
}

func (i *Interaction) Given(state string) *Interaction {
	i.interaction.ProviderState = state
	return i
}

func (i *Interaction) UponReceiving(description string) *Interaction {
	i.interaction.Description = description
	return i
}

func (i *Interaction) WithRequest(request Request) *Interaction {
	if request.Path == nil {
		i.err = errors.Errorf("interaction '%s' has no request path", i.interaction.Description)
		return i
	}
	path := matcher.From(request.Path)
	if _, ok := path.Example().(string); !ok {
		i.err = errors.Errorf("interaction '%s' has a request path that is not a string", i.interaction.Description)
		return i
	}

	i.interaction.Request = contract.RequestSpec{
		Method:  strings.ToUpper(request.Method),
		Path:    path,
		Query:   nodes(request.Query),
		Headers: nodes(request.Headers),
		Body:    body(request.Body),
	}
	return i
}

func (i *Interaction) WillRespondWith(response Response) *Interaction {
	i.interaction.Response = contract.ResponseSpec{
		Status:  response.Status,
		Headers: nodes(response.Headers),
		Body:    body(response.Body),
	}
	return i
}

func nodes(values map[string]interface{}) map[string]matcher.Node {
	if len(values) == 0 {
		return nil
	}
	return matcher.Nodes(values)
}

func body(v interface{}) matcher.Node {
	if v == nil {
		return nil
	}
	return matcher.From(v)
}
