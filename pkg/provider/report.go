package provider

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
)

type Phase string

const (
	PhaseIdle             Phase = "Idle"
	PhaseStateSetup       Phase = "StateSetup"
	PhaseRequestSent      Phase = "RequestSent"
	PhaseResponseReceived Phase = "ResponseReceived"
	PhaseCompared         Phase = "Compared"
	PhaseDone             Phase = "Done"
)

// Outcome is the verification result of one interaction.
type Outcome struct {
	Consumer    string            `json:"consumer"`
	Interaction contract.Identity `json:"interaction"`
	Phase       Phase             `json:"phase"`
	FailedIn    Phase             `json:"failedIn,omitempty"`
	Passed      bool              `json:"passed"`
	Faults      []contract.Fault  `json:"faults,omitempty"`
	Duration    time.Duration     `json:"duration"`
}

func (o Outcome) has(kind contract.FaultKind) bool {
	for _, f := range o.Faults {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

type Report struct {
	RunID           string    `json:"runId"`
	Provider        string    `json:"provider"`
	ProviderVersion string    `json:"providerVersion,omitempty"`
	Total           int       `json:"total"`
	Passed          int       `json:"passed"`
	Failed          int       `json:"failed"`
	Skipped         int       `json:"skipped"`
	Aborted         bool      `json:"aborted"`
	AbortReason     string    `json:"abortReason,omitempty"`
	Outcomes        []Outcome `json:"outcomes"`
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Passed {
		r.Passed++
	} else {
		r.Failed++
	}
}

func (r *Report) abort(err error) {
	if r.Aborted {
		return
	}
	r.Aborted = true
	r.AbortReason = err.Error()
}

// Success reports whether every interaction passed and the run completed.
func (r *Report) Success() bool {
	return r.Failed == 0 && !r.Aborted
}

func (r *Report) ExitCode() int {
	if r.Success() {
		return 0
	}
	return 1
}

// Faults lists the faults of every failed interaction in run order.
func (r *Report) Faults() []contract.Fault {
	var faults []contract.Fault
	for _, o := range r.Outcomes {
		faults = append(faults, o.Faults...)
	}
	return faults
}

// Print writes a human readable summary followed by the faults of every
// failed interaction.
func (r *Report) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Verifying provider %s", r.Provider)
	if r.ProviderVersion != "" {
		fmt.Fprintf(tw, " (%s)", r.ProviderVersion)
	}
	fmt.Fprintf(tw, "\nrun %s\n\n", r.RunID)

	for _, o := range r.Outcomes {
		result := "PASS"
		if !o.Passed {
			result = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", result, o.Interaction, o.Duration.Round(time.Millisecond))
		for _, f := range o.Faults {
			fmt.Fprintf(tw, "\t  %s\n", describeFault(f))
		}
	}

	fmt.Fprintf(tw, "\n%d interaction(s), %d passed, %d failed, %d skipped\n", r.Total, r.Passed, r.Failed, r.Skipped)
	if r.Aborted {
		fmt.Fprintf(tw, "aborted: %s\n", r.AbortReason)
	}
	return tw.Flush()
}

func describeFault(f contract.Fault) string {
	f.Interaction = nil
	return f.Error()
}
