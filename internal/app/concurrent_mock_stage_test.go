package app

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/form3tech-oss/pact-contract/pkg/contractmock"
	"github.com/form3tech-oss/pact-contract/pkg/matcher"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

const (
	postAddressInteraction = "A request to create an address"
	postNameInteraction    = "A request to create a user with any name"
)

type ConcurrentMockStage struct {
	t                         *testing.T
	assert                    *assert.Assertions
	conf                      *contractmock.Configuration
	server                    *contractmock.MockServer
	interactions              []contract.Interaction
	modifiedNameStatusCode    int
	modifiedAddressStatusCode int
	concurrentUserRequests    int
	concurrentAddressRequests int
	requestsPerWorker         int

	mu               sync.Mutex
	userResponses    []int
	addressResponses []int
}

func NewConcurrentMockStage(t *testing.T) (*ConcurrentMockStage, *ConcurrentMockStage, *ConcurrentMockStage) {
	s := &ConcurrentMockStage{
		t:      t,
		assert: assert.New(t),
		conf:   contractmock.NewConfiguration(adminURL),
	}

	t.Cleanup(func() {
		if s.server != nil {
			_ = s.server.Close()
		}
	})

	return s, s, s
}

func (s *ConcurrentMockStage) and() *ConcurrentMockStage {
	return s
}

func (s *ConcurrentMockStage) a_modified_name_status_code() *ConcurrentMockStage {
	s.modifiedNameStatusCode = http.StatusBadGateway
	return s
}

func (s *ConcurrentMockStage) a_modified_address_status_code() *ConcurrentMockStage {
	s.modifiedAddressStatusCode = http.StatusConflict
	return s
}

func (s *ConcurrentMockStage) a_contract_that_allows_any_names() *ConcurrentMockStage {
	s.interactions = append(s.interactions, contract.Interaction{
		Description: postNameInteraction,
		Request: contract.RequestSpec{
			Method:  "POST",
			Path:    matcher.Lit("/users"),
			Headers: matcher.Nodes(map[string]interface{}{"Content-Type": "application/json"}),
			Body:    matcher.From(map[string]interface{}{"name": matcher.Term(".*", "any")}),
		},
		Response: contract.ResponseSpec{
			Status: 200,
			Body:   matcher.From(map[string]interface{}{"name": "any"}),
		},
	})
	return s
}

func (s *ConcurrentMockStage) a_contract_that_allows_any_address() *ConcurrentMockStage {
	s.interactions = append(s.interactions, contract.Interaction{
		Description: postAddressInteraction,
		Request: contract.RequestSpec{
			Method:  "POST",
			Path:    matcher.Lit("/addresses"),
			Headers: matcher.Nodes(map[string]interface{}{"Content-Type": "application/json"}),
			Body:    matcher.From(map[string]interface{}{"address": matcher.Term(".*", "any")}),
		},
		Response: contract.ResponseSpec{
			Status: 200,
			Body:   matcher.From(map[string]interface{}{"address": "any"}),
		},
	})
	return s
}

func (s *ConcurrentMockStage) x_concurrent_user_requests_are_made(x int) *ConcurrentMockStage {
	s.concurrentUserRequests = x
	return s
}

func (s *ConcurrentMockStage) x_concurrent_address_requests_are_made(x int) *ConcurrentMockStage {
	s.concurrentAddressRequests = x
	return s
}

func (s *ConcurrentMockStage) y_times_each(y int) *ConcurrentMockStage {
	s.requestsPerWorker = y
	return s
}

func (s *ConcurrentMockStage) the_concurrent_requests_are_sent() *ConcurrentMockStage {
	server, err := s.conf.StartServer("concurrent-consumer", "concurrent-provider", s.interactions...)
	if !s.assert.NoError(err, "mock server setup failed") {
		s.t.FailNow()
	}
	s.server = server

	if s.modifiedNameStatusCode != 0 {
		s.assert.NoError(server.ForInteraction(postNameInteraction).AddModifier("$.status", fmt.Sprintf("%d", s.modifiedNameStatusCode), nil))
	}
	if s.modifiedAddressStatusCode != 0 {
		s.assert.NoError(server.ForInteraction(postAddressInteraction).AddModifier("$.status", fmt.Sprintf("%d", s.modifiedAddressStatusCode), nil))
	}

	log.Infof("sending %d user and %d address requests %d times each", s.concurrentUserRequests, s.concurrentAddressRequests, s.requestsPerWorker)

	wg := sync.WaitGroup{}
	send := func(workers int, path, body string, responses *[]int) {
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < s.requestsPerWorker; j++ {
					res, err := http.Post(server.URL()+path, "application/json", strings.NewReader(body))
					if !s.assert.NoError(err) {
						return
					}
					res.Body.Close()

					s.mu.Lock()
					*responses = append(*responses, res.StatusCode)
					s.mu.Unlock()
				}
			}()
		}
	}
	send(s.concurrentUserRequests, "/users", `{"name":"jim"}`, &s.userResponses)
	send(s.concurrentAddressRequests, "/addresses", `{"address":"test"}`, &s.addressResponses)
	wg.Wait()

	return s
}

func (s *ConcurrentMockStage) all_the_user_responses_should_have_the_right_status_code() *ConcurrentMockStage {
	s.assert.Len(s.userResponses, s.concurrentUserRequests*s.requestsPerWorker, "number of user responses is not as expected")
	for _, code := range s.userResponses {
		s.assert.Equal(s.modifiedNameStatusCode, code, "expected user status code")
	}
	return s
}

func (s *ConcurrentMockStage) all_the_address_responses_should_have_the_right_status_code() *ConcurrentMockStage {
	s.assert.Len(s.addressResponses, s.concurrentAddressRequests*s.requestsPerWorker, "number of address responses is not as expected")
	for _, code := range s.addressResponses {
		s.assert.Equal(s.modifiedAddressStatusCode, code, "expected address status code")
	}
	return s
}

func (s *ConcurrentMockStage) no_faults_were_recorded() *ConcurrentMockStage {
	faults, err := s.server.Faults()
	s.assert.NoError(err)
	s.assert.Empty(faults)
	return s
}
