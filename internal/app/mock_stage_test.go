package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/form3tech-oss/pact-contract/pkg/contractmock"
	"github.com/form3tech-oss/pact-contract/pkg/matcher"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type MockStage struct {
	t                   *testing.T
	assert              *assert.Assertions
	conf                *contractmock.Configuration
	server              *contractmock.MockServer
	interactions        []contract.Interaction
	interactionName     string
	nameConstraintValue string
	modifiedStatusCode  int
	modifiedAttempt     *int
	modifiedBody        map[string]interface{}
	requestsToSend      int32
	requestsSent        int32
	responses           []*http.Response
	responseBodies      [][]byte
	contractPath        string
	contractErr         error
}

var largeString = strings.Repeat("long_string123BBmmF8BYezrBhCROOCRJfeH5k69hMKXH77TSvwF5GHUZFnbh1dsZ3d90HeR0jUIOovJJVS508uI17djeLFFSb7", 440)

func NewMockStage(t *testing.T) (*MockStage, *MockStage, *MockStage) {
	s := &MockStage{
		t:               t,
		assert:          assert.New(t),
		conf:            contractmock.NewConfiguration(adminURL),
		modifiedBody:    make(map[string]interface{}),
		interactionName: "interaction-" + strconv.FormatInt(time.Now().UnixNano(), 10),
	}

	s.t.Cleanup(func() {
		if s.server != nil {
			_ = s.server.Close()
		}
	})

	return s, s, s
}

func (s *MockStage) and() *MockStage {
	return s
}

func (s *MockStage) a_contract_with(response contract.ResponseSpec, request contract.RequestSpec) *MockStage {
	s.interactions = append(s.interactions, contract.Interaction{
		Description: s.interactionName,
		Request:     request,
		Response:    response,
	})
	return s
}

func (s *MockStage) a_contract_that_allows_any_names() *MockStage {
	return s.a_contract_with(
		contract.ResponseSpec{
			Status:  200,
			Headers: matcher.Nodes(map[string]interface{}{"Content-Type": "application/json"}),
			Body:    matcher.From(map[string]interface{}{"name": "any"}),
		},
		contract.RequestSpec{
			Method:  "POST",
			Path:    matcher.Lit("/users"),
			Headers: matcher.Nodes(map[string]interface{}{"Content-Type": "application/json"}),
			Body:    matcher.From(map[string]interface{}{"name": matcher.Term(".*", "any")}),
		},
	)
}

func (s *MockStage) a_contract_that_allows_any_age() *MockStage {
	return s.a_contract_with(
		contract.ResponseSpec{
			Status: 200,
			Body:   matcher.From(map[string]interface{}{"age": 100}),
		},
		contract.RequestSpec{
			Method: "POST",
			Path:   matcher.Lit("/users"),
			Body:   matcher.From(map[string]interface{}{"age": matcher.Like(1)}),
		},
	)
}

func (s *MockStage) a_contract_that_allows_any_names_and_returns_no_body() *MockStage {
	return s.a_contract_with(
		contract.ResponseSpec{Status: 204},
		contract.RequestSpec{
			Method: "POST",
			Path:   matcher.Lit("/users"),
			Body:   matcher.From(map[string]interface{}{"name": matcher.Term(".*", "any")}),
		},
	)
}

func (s *MockStage) a_contract_that_returns_a_large_body() *MockStage {
	return s.a_contract_with(
		contract.ResponseSpec{
			Status: 200,
			Body: matcher.From(map[string]interface{}{
				"large_string": largeString,
				"name":         "any",
			}),
		},
		contract.RequestSpec{
			Method: "POST",
			Path:   matcher.Lit("/users"),
			Body:   matcher.From(map[string]interface{}{"name": matcher.Term(".*", "any")}),
		},
	)
}

func (s *MockStage) a_contract_that_expects_plain_text() *MockStage {
	return s.a_contract_with(
		contract.ResponseSpec{
			Status:  200,
			Headers: matcher.Nodes(map[string]interface{}{"Content-Type": "text/plain"}),
			Body:    matcher.Lit("text"),
		},
		contract.RequestSpec{
			Method:  "POST",
			Path:    matcher.Lit("/users"),
			Headers: matcher.Nodes(map[string]interface{}{"Content-Type": "text/plain"}),
			Body:    matcher.Lit("text"),
		},
	)
}

func (s *MockStage) a_name_constraint_is_added(name string) *MockStage {
	s.nameConstraintValue = name
	return s
}

func (s *MockStage) a_modified_response_status_of_(statusCode int) *MockStage {
	s.modifiedStatusCode = statusCode
	return s
}

func (s *MockStage) a_modified_response_body_of_(path string, value interface{}) *MockStage {
	s.modifiedBody[path] = value
	return s
}

func (s *MockStage) a_modified_response_attempt_of(i int) *MockStage {
	s.modifiedAttempt = &i
	return s
}

// the_mock_server_is_started starts the server and shapes it with whatever
// constraints and modifiers the given steps asked for.
func (s *MockStage) the_mock_server_is_started() *MockStage {
	server, err := s.conf.StartServer("stage-consumer", s.interactionName, s.interactions...)
	if !s.assert.NoError(err, "mock server setup failed") {
		s.t.FailNow()
	}
	s.server = server

	setup := server.ForInteraction(s.interactionName)
	if s.nameConstraintValue != "" {
		s.assert.NoError(setup.AddConstraint("$.body.name", s.nameConstraintValue))
	}
	if s.modifiedStatusCode != 0 {
		s.assert.NoError(setup.AddModifier("$.status", fmt.Sprintf("%d", s.modifiedStatusCode), s.modifiedAttempt))
	}
	for path, value := range s.modifiedBody {
		s.assert.NoError(setup.AddModifier(path, value, s.modifiedAttempt))
	}
	return s
}

func (s *MockStage) a_request_is_sent_using_the_name(name string) *MockStage {
	return s.n_requests_are_sent_using_the_name(1, name)
}

func (s *MockStage) n_requests_are_sent_using_the_name(n int, name string) *MockStage {
	return s.n_requests_are_sent_using_the_body_and_content_type(n, fmt.Sprintf(`{"name":"%s"}`, name), "application/json")
}

func (s *MockStage) a_request_is_sent_using_the_age(age int64) *MockStage {
	return s.n_requests_are_sent_using_the_body_and_content_type(1, fmt.Sprintf(`{"age": %d}`, age), "application/json")
}

func (s *MockStage) a_plain_text_request_is_sent_with_body(body string) *MockStage {
	return s.n_requests_are_sent_using_the_body_and_content_type(1, body, "text/plain")
}

func (s *MockStage) n_requests_are_sent_using_the_body_and_content_type(n int, body, contentType string) *MockStage {
	if s.server == nil {
		s.the_mock_server_is_started()
	}
	for i := 0; i < n; i++ {
		s.send_post_request_and_collect_response(body, contentType)
	}
	return s
}

func (s *MockStage) send_post_request_and_collect_response(body, contentType string) {
	req, err := http.NewRequest("POST", s.server.URL()+"/users", strings.NewReader(body))
	s.assert.NoError(err, "request creation failed")

	req.Header.Set("Content-Type", contentType)
	res, err := http.DefaultClient.Do(req)
	if !s.assert.NoError(err, "sending request failed") {
		return
	}
	defer res.Body.Close()

	s.responses = append(s.responses, res)
	bodyBytes, err := io.ReadAll(res.Body)
	s.assert.NoError(err, "unable to read response body")
	s.responseBodies = append(s.responseBodies, bodyBytes)
}

func (s *MockStage) multiple_requests_are_sent(requestsToSend int32) *MockStage {
	if s.server == nil {
		s.the_mock_server_is_started()
	}
	s.requestsToSend = requestsToSend
	atomic.StoreInt32(&s.requestsSent, 0)

	url := s.server.URL() + "/users"
	go func() {
		for i := int32(0); i < requestsToSend; i++ {
			req, err := http.NewRequest("POST", url, strings.NewReader(`{"name":"test"}`))
			if err != nil {
				return
			}
			req.Header.Set("Content-Type", "application/json")
			atomic.AddInt32(&s.requestsSent, 1)
			res, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			res.Body.Close()
		}
	}()

	s.assert.NoError(s.server.WaitForInteraction(s.interactionName, int(requestsToSend)))
	return s
}

func (s *MockStage) the_contract_is_written() *MockStage {
	if s.server == nil {
		s.the_mock_server_is_started()
	}
	s.contractPath, s.contractErr = s.server.WriteContract()
	return s
}

func (s *MockStage) contract_is_written() *MockStage {
	if s.assert.NoError(s.contractErr, "contract was not written") {
		doc, err := contract.Load(s.contractPath)
		s.assert.NoError(err, "written contract cannot be loaded")
		if err == nil {
			_, found := doc.Find(contract.Identity{Description: s.interactionName})
			s.assert.True(found, "interaction missing from the written contract")
		}
	}
	return s
}

func (s *MockStage) contract_is_not_written_because_of(kind contract.FaultKind) *MockStage {
	var faultErr *contract.FaultError
	if s.assert.True(errors.As(s.contractErr, &faultErr), "expected faults, got %v", s.contractErr) {
		s.assert.True(faultErr.Has(kind), "expected a %s fault in %v", kind, faultErr)
	}
	return s
}

func (s *MockStage) the_mock_waits_for_all_requests() *MockStage {
	sent := atomic.LoadInt32(&s.requestsSent)
	s.assert.Equal(s.requestsToSend, sent, "mock did not wait for requests")
	return s
}

func (s *MockStage) the_response_is_(statusCode int) *MockStage {
	return s.the_nth_response_is_(1, statusCode)
}

func (s *MockStage) the_nth_response_is_(n, statusCode int) *MockStage {
	if !s.assert.GreaterOrEqual(len(s.responses), n, "number of responses is less than expected") {
		return s
	}
	s.assert.Equalf(statusCode, s.responses[n-1].StatusCode, "Expected status code on attempt %d: %d, got : %d", n, statusCode, s.responses[n-1].StatusCode)
	return s
}

func (s *MockStage) the_response_name_is_(name string) *MockStage {
	return s.the_nth_response_body_has_(1, "name", name)
}

func (s *MockStage) the_nth_response_body_has_(n int, key string, value interface{}) *MockStage {
	if !s.assert.GreaterOrEqual(len(s.responseBodies), n, "number of response bodies is less than expected") {
		return s
	}

	var body map[string]interface{}
	err := json.Unmarshal(s.responseBodies[n-1], &body)
	s.assert.NoError(err, "unable to parse response body, %v", err)
	s.assert.Equalf(value, body[key], "Expected %s on attempt %d: %v, got: %v", key, n, value, body[key])
	return s
}

func (s *MockStage) the_nth_response_body_is(n int, data []byte) *MockStage {
	if !s.assert.GreaterOrEqual(len(s.responseBodies), n, "number of response bodies is less than expected") {
		return s
	}
	s.assert.True(bytes.Equal(data, s.responseBodies[n-1]), "Expected body %q, got %q", data, s.responseBodies[n-1])
	return s
}
