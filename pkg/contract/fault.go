package contract

import (
	"fmt"
	"strings"

	"github.com/form3tech-oss/pact-contract/pkg/matcher"
	"github.com/pkg/errors"
)

type FaultKind string

const (
	MatcherMismatch     FaultKind = "MatcherMismatch"
	UnmatchedRequest    FaultKind = "UnmatchedRequest"
	UnusedInteraction   FaultKind = "UnusedInteraction"
	MissingStateHandler FaultKind = "MissingStateHandler"
	StateHandlerFailure FaultKind = "StateHandlerFailure"
	TimeoutError        FaultKind = "TimeoutError"
	ProviderUnreachable FaultKind = "ProviderUnreachable"
	// ProviderError is a broken exchange with a provider that accepted the
	// connection, e.g. a reset or a truncated response. It fails one
	// interaction.
	ProviderError       FaultKind = "ProviderError"
	ArtifactWriteError  FaultKind = "ArtifactWriteError"
)

var (
	ErrArtifactWrite       = errors.New("contract artifact could not be written")
	ErrProviderUnreachable = errors.New("provider is unreachable")
)

// Fault is a single diagnosable failure, tagged with the interaction it
// belongs to when there is one.
type Fault struct {
	Kind        FaultKind   `json:"kind"`
	Interaction *Identity   `json:"interaction,omitempty"`
	Path        string      `json:"path,omitempty"`
	Expected    string      `json:"expected,omitempty"`
	Actual      interface{} `json:"actual,omitempty"`
	Message     string      `json:"message,omitempty"`
}

func (f Fault) Error() string {
	var b strings.Builder
	b.WriteString(string(f.Kind))
	if f.Interaction != nil {
		b.WriteString(" in ")
		b.WriteString(f.Interaction.String())
	}
	if f.Path != "" {
		fmt.Fprintf(&b, " at %s: expected %s but got %s", f.Path, f.Expected, describe(f.Actual))
	}
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	return b.String()
}

// MismatchFaults converts matcher output into MatcherMismatch faults.
func MismatchFaults(id *Identity, mismatches []matcher.Mismatch) []Fault {
	faults := make([]Fault, 0, len(mismatches))
	for _, m := range mismatches {
		faults = append(faults, Fault{
			Kind:        MatcherMismatch,
			Interaction: id,
			Path:        m.Path,
			Expected:    m.Expected,
			Actual:      m.Actual,
		})
	}
	return faults
}

// FaultError aggregates every fault of a run into one error.
type FaultError struct {
	Faults []Fault
}

func (e *FaultError) Error() string {
	lines := make([]string, 0, len(e.Faults)+1)
	lines = append(lines, fmt.Sprintf("%d contract fault(s):", len(e.Faults)))
	for _, f := range e.Faults {
		lines = append(lines, "  - "+f.Error())
	}
	return strings.Join(lines, "\n")
}

// Has reports whether a fault of the given kind was collected.
func (e *FaultError) Has(kind FaultKind) bool {
	for _, f := range e.Faults {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: unable to write contract %s: %v", ArtifactWriteError, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrArtifactWrite }

func describe(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	}
	return fmt.Sprintf("%v", v)
}
