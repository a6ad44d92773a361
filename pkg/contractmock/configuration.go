// Package contractmock is a client for the contract-mock admin API. It lets
// tests written in any process start mock providers, shape their responses
// and collect the resulting contract.
package contractmock

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/pact-contract/internal/app/configuration"
	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/pkg/errors"
)

type ServerRequest configuration.ServerRequest

type Configuration struct {
	client http.Client
	url    string
}

func NewConfiguration(url string) *Configuration {
	return &Configuration{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: strings.TrimSuffix(url, "/"),
	}
}

func (conf *Configuration) IsReady() error {
	res, err := conf.client.Get(conf.url + "/ready")
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("admin api not ready, status %d", res.StatusCode)
	}
	return nil
}

// WaitUntilReady polls the admin API until it answers or ctx is done.
func (conf *Configuration) WaitUntilReady(ctx context.Context) error {
	err := retry.Do(conf.IsReady,
		retry.Context(ctx),
		retry.Attempts(20),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	return errors.Wrap(err, "admin api readiness wait failed")
}

// StartServer starts a mock provider for interactions with the daemon's
// default mock configuration.
func (conf *Configuration) StartServer(consumer, provider string, interactions ...contract.Interaction) (*MockServer, error) {
	return conf.StartServerWithRequest(ServerRequest{
		Consumer:     consumer,
		Provider:     provider,
		Interactions: interactions,
	})
}

func (conf *Configuration) StartServerWithRequest(request ServerRequest) (*MockServer, error) {
	content, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal server request")
	}

	var created configuration.ServerResponse
	if err := conf.do(http.MethodPost, "/servers", content, http.StatusCreated, &created); err != nil {
		return nil, errors.Wrap(err, "failed to start mock server")
	}

	return &MockServer{
		conf: conf,
		id:   created.ID,
		url:  created.URL,
	}, nil
}

// Reset closes every mock server the daemon runs.
func (conf *Configuration) Reset() error {
	return errors.Wrap(conf.do(http.MethodDelete, "/servers", nil, http.StatusNoContent, nil), "error resetting mock servers")
}

// do sends a request to the admin API. The response is decoded into out when
// its status is the expected one, otherwise its error message is returned.
func (conf *Configuration) do(method, path string, content []byte, expected int, out interface{}) error {
	var reader io.Reader
	if content != nil {
		reader = bytes.NewReader(content)
	}
	req, err := http.NewRequest(method, conf.url+path, reader)
	if err != nil {
		return err
	}
	if content != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := conf.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read admin api response")
	}

	if res.StatusCode != expected {
		return &StatusError{StatusCode: res.StatusCode, Body: responseBody}
	}
	if out != nil && len(responseBody) > 0 {
		return errors.Wrap(json.Unmarshal(responseBody, out), "failed to parse admin api response")
	}
	return nil
}

// StatusError is returned when the admin API answers with an unexpected
// status.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	var apiErr struct {
		ErrorMessage string `json:"error_message"`
	}
	if json.Unmarshal(e.Body, &apiErr) == nil && apiErr.ErrorMessage != "" {
		return apiErr.ErrorMessage
	}
	return string(e.Body)
}
