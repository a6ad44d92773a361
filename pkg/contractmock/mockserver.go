package contractmock

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/form3tech-oss/pact-contract/internal/app/configuration"
	"github.com/form3tech-oss/pact-contract/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/pkg/errors"
)

// MockServer is a handle to one mock provider running in the daemon.
type MockServer struct {
	conf *Configuration
	id   string
	url  string
}

type InteractionSetup struct {
	interaction string
	server      *MockServer
}

func (m *MockServer) ID() string {
	return m.id
}

// URL is where the consumer under test sends its requests.
func (m *MockServer) URL() string {
	return m.url
}

func (m *MockServer) path(suffix string) string {
	return "/servers/" + url.PathEscape(m.id) + suffix
}

func (m *MockServer) ForInteraction(interaction string) *InteractionSetup {
	return &InteractionSetup{
		interaction: interaction,
		server:      m,
	}
}

func (m *MockServer) post(suffix string, body interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return m.conf.do(http.MethodPost, m.path(suffix), b, http.StatusNoContent, nil)
}

func (m *MockServer) WaitForAll() error {
	return errors.Wrap(m.conf.do(http.MethodGet, m.path("/wait"), nil, http.StatusOK, nil), "timeout waiting for interactions")
}

func (m *MockServer) WaitForInteraction(interaction string, count int) error {
	q := url.Values{}
	q.Add("interaction", interaction)
	q.Add("count", strconv.Itoa(count))

	err := m.conf.do(http.MethodGet, m.path("/wait?"+q.Encode()), nil, http.StatusOK, nil)
	return errors.Wrapf(err, "timeout waiting for interaction '%s'", interaction)
}

// Faults lists what went wrong on the server so far, unused interactions
// included.
func (m *MockServer) Faults() ([]contract.Fault, error) {
	var verification configuration.VerificationResponse
	if err := m.conf.do(http.MethodGet, m.path("/verification"), nil, http.StatusOK, &verification); err != nil {
		return nil, err
	}
	return verification.Faults, nil
}

// WriteContract asks the daemon to write the contract. A run with faults
// returns a *contract.FaultError and writes nothing.
func (m *MockServer) WriteContract() (string, error) {
	var written configuration.ContractResponse
	err := m.conf.do(http.MethodPost, m.path("/contract"), nil, http.StatusCreated, &written)
	if err == nil {
		return written.Path, nil
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		var apiErr httpresponse.APIError
		if json.Unmarshal(statusErr.Body, &apiErr) == nil {
			return "", &contract.FaultError{Faults: apiErr.Faults}
		}
	}
	return "", err
}

func (m *MockServer) Close() error {
	return m.conf.do(http.MethodDelete, m.path(""), nil, http.StatusNoContent, nil)
}

// AddConstraint requires the value at path of every request to equal value.
func (s *InteractionSetup) AddConstraint(path, value string) error {
	return s.server.post("/constraints", map[string]interface{}{
		"interaction": s.interaction,
		"path":        path,
		"format":      "%s",
		"values":      []string{value},
	})
}

// AddConstraintFrom builds the expected value with format from JSONPath
// values taken from the last request of another interaction.
func (s *InteractionSetup) AddConstraintFrom(path, fromInteraction, format string, values ...string) error {
	return s.server.post("/constraints", map[string]interface{}{
		"interaction": s.interaction,
		"path":        path,
		"source":      fromInteraction,
		"format":      format,
		"values":      values,
	})
}

// AddModifier overrides the served status or a body field. A nil attempt
// applies to every response.
func (s *InteractionSetup) AddModifier(path string, value interface{}, attempt *int) error {
	body := map[string]interface{}{
		"interaction": s.interaction,
		"path":        path,
		"value":       value,
	}
	if attempt != nil {
		body["attempt"] = attempt
	}
	return s.server.post("/modifiers", body)
}
