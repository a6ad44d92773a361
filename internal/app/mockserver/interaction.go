package mockserver

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/form3tech-oss/pact-contract/pkg/matcher"
)

// Interaction is a registered expectation together with the requests it has
// been credited with.
type Interaction struct {
	mu             sync.RWMutex
	definition     contract.Interaction
	Description    string            `json:"description"`
	ProviderState  string            `json:"provider_state,omitempty"`
	RequestCount   int               `json:"request_count"`
	RequestHistory []requestDocument `json:"request_history,omitempty"`
	LastRequest    requestDocument   `json:"last_request"`
	constraints    map[string]Constraint
	modifiers      interactionModifiers
	recordHistory  bool
}

func newInteraction(definition contract.Interaction, recordHistory bool) *Interaction {
	definition.Request.Method = strings.ToUpper(definition.Request.Method)
	return &Interaction{
		definition:    definition,
		Description:   definition.Description,
		ProviderState: definition.ProviderState,
		constraints:   map[string]Constraint{},
		recordHistory: recordHistory,
	}
}

func (i *Interaction) Definition() contract.Interaction {
	return i.definition
}

func (i *Interaction) Identity() contract.Identity {
	return i.definition.Identity()
}

// Match reports whether method and path select this interaction as a
// candidate. The path is evaluated with the interaction's path matcher.
func (i *Interaction) Match(path, method string) bool {
	if !strings.EqualFold(method, i.definition.Request.Method) {
		return false
	}
	return matcher.EvaluateAt("path", i.definition.Request.Path, path).OK()
}

func (i *Interaction) AddConstraint(constraint Constraint) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.constraints[constraint.Key()] = constraint
}

func (i *Interaction) AddModifier(modifier *Modifier) {
	i.modifiers.AddModifier(modifier)
}

// Evaluate checks a candidate request against the query, header and body
// matchers plus any constraints, returning every fault found.
func (i *Interaction) Evaluate(req *http.Request, request requestDocument, interactions *Interactions) []contract.Fault {
	id := i.Identity()
	spec := i.definition.Request

	var mismatches []matcher.Mismatch
	if len(spec.Query) > 0 {
		query := matcher.Object{Fields: spec.Query}
		mismatches = append(mismatches, matcher.EvaluateAt("query", query, queryValues(req.URL.Query(), spec.Query)).Mismatches...)
	}
	if len(spec.Headers) > 0 {
		headers := matcher.Object{Fields: spec.Headers}
		mismatches = append(mismatches, matcher.EvaluateAt("headers", headers, headerValues(req.Header, spec.Headers)).Mismatches...)
	}
	if spec.Body != nil {
		mismatches = append(mismatches, matcher.EvaluateAt("body", spec.Body, request["body"]).Mismatches...)
	}
	faults := contract.MismatchFaults(&id, mismatches)

	i.mu.RLock()
	constraints := make([]Constraint, 0, len(i.constraints))
	for _, c := range i.constraints {
		constraints = append(constraints, c)
	}
	i.mu.RUnlock()

	for _, c := range constraints {
		if err := c.evaluate(request, interactions); err != nil {
			faults = append(faults, contract.Fault{
				Kind:        contract.MatcherMismatch,
				Interaction: &id,
				Message:     err.Error(),
			})
		}
	}
	return faults
}

func (i *Interaction) StoreRequest(request requestDocument) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.LastRequest = request
	i.RequestCount++

	if i.recordHistory {
		i.RequestHistory = append(i.RequestHistory, request)
	}
}

func (i *Interaction) HasRequests(count int) bool {
	return i.getRequestCount() >= count
}

func (i *Interaction) getRequestCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.RequestCount
}

func (i *Interaction) lastRequest() requestDocument {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.LastRequest
}

// queryValues picks the first value of each expected parameter. Absent
// parameters are left out so that the object matcher reports them missing.
func queryValues(values url.Values, expected map[string]matcher.Node) map[string]interface{} {
	actual := make(map[string]interface{}, len(expected))
	for name := range expected {
		if v, ok := values[name]; ok && len(v) > 0 {
			actual[name] = v[0]
		}
	}
	return actual
}

// headerValues looks up expected headers case-insensitively, keyed by the
// names the contract uses.
func headerValues(header http.Header, expected map[string]matcher.Node) map[string]interface{} {
	actual := make(map[string]interface{}, len(expected))
	for name := range expected {
		if v := header.Values(name); len(v) > 0 {
			actual[name] = strings.Join(v, ", ")
		}
	}
	return actual
}
