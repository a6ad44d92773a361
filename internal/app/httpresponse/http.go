package httpresponse

import (
	"fmt"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
	log "github.com/sirupsen/logrus"
)

// APIError is the JSON body returned by the mock and admin servers when they
// cannot serve a request.
type APIError struct {
	ErrorMessage string           `json:"error_message"`
	Method       string           `json:"method,omitempty"`
	Path         string           `json:"path,omitempty"`
	Faults       []contract.Fault `json:"faults,omitempty"`
}

func (e *APIError) Error() string {
	return e.ErrorMessage
}

func Error(error string) *APIError {
	log.Error(error)
	e := &APIError{
		ErrorMessage: error,
	}
	return e
}

func Errorf(error string, a ...interface{}) *APIError {
	return Error(fmt.Sprintf(error, a...))
}

// Unmatched describes a request that no registered interaction accepted.
func Unmatched(method, path string, faults []contract.Fault) *APIError {
	e := Errorf("unmatched request %s %s", method, path)
	e.Method = method
	e.Path = path
	e.Faults = faults
	return e
}
