// Package provider replays contract interactions against a running provider
// and reports whether its responses honour them.
package provider

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const DefaultTimeout = 10 * time.Second

// StateHandler puts the provider into a named state before an interaction
// that requires it is replayed.
type StateHandler func(ctx context.Context) error

type Options struct {
	ProviderBaseURL string
	StateHandlers   map[string]StateHandler
	// StateChangeURL receives {"state": ..., "action": "setup"} for states
	// without a handler.
	StateChangeURL  string
	ProviderVersion string
	// Timeout bounds each interaction, state setup included.
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Verifier struct {
	options Options
	baseURL *url.URL
	client  *http.Client
	loader  *contract.Loader
}

func New(options Options) (*Verifier, error) {
	baseURL, err := url.Parse(options.ProviderBaseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid provider base URL %q", options.ProviderBaseURL)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, errors.Errorf("provider base URL %q must be absolute", options.ProviderBaseURL)
	}
	if options.StateChangeURL != "" {
		if _, err := url.Parse(options.StateChangeURL); err != nil {
			return nil, errors.Wrapf(err, "invalid state change URL %q", options.StateChangeURL)
		}
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}

	client := options.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Verifier{
		options: options,
		baseURL: baseURL,
		client:  client,
		loader:  contract.DefaultLoader(),
	}, nil
}

// VerifyFiles loads the contracts at paths and verifies them in order.
func (v *Verifier) VerifyFiles(ctx context.Context, paths ...string) (*Report, error) {
	docs, err := v.loader.LoadAll(paths...)
	if err != nil {
		return nil, err
	}
	return v.Verify(ctx, docs...), nil
}

// Verify replays every interaction of docs sequentially. Faults are kept per
// interaction; only an unreachable provider stops the run, leaving the
// remaining interactions unstarted.
func (v *Verifier) Verify(ctx context.Context, docs ...*contract.Document) *Report {
	report := &Report{
		RunID:           uuid.NewString(),
		ProviderVersion: v.options.ProviderVersion,
	}
	for _, doc := range docs {
		if report.Provider == "" {
			report.Provider = doc.Provider.Name
		}
		report.Total += len(doc.Interactions)
	}

	logger := log.WithFields(log.Fields{
		"run_id":   report.RunID,
		"provider": report.Provider,
	})
	logger.Infof("verifying %d interaction(s) against %s", report.Total, v.baseURL)

	for _, doc := range docs {
		for _, interaction := range doc.Interactions {
			if report.Aborted {
				report.Skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				report.abort(errors.Wrap(err, "verification cancelled"))
				report.Skipped++
				continue
			}

			outcome := v.verifyInteraction(ctx, doc.Consumer.Name, interaction)
			report.add(outcome)

			entry := logger.WithFields(log.Fields{
				"interaction": interaction.Description,
				"state":       interaction.ProviderState,
			})
			if outcome.Passed {
				entry.Info("passed")
			} else {
				entry.Warnf("failed with %d fault(s)", len(outcome.Faults))
			}

			if outcome.has(contract.ProviderUnreachable) {
				report.abort(errors.Wrap(contract.ErrProviderUnreachable, outcome.Faults[0].Message))
			}
		}
	}

	logger.Infof("verification finished: %d passed, %d failed, %d skipped", report.Passed, report.Failed, report.Skipped)
	return report
}

func (v *Verifier) verifyInteraction(parent context.Context, consumer string, interaction contract.Interaction) (outcome Outcome) {
	id := interaction.Identity()
	outcome = Outcome{
		Consumer:    consumer,
		Interaction: id,
		Phase:       PhaseIdle,
	}
	start := time.Now()
	defer func() {
		outcome.Duration = time.Since(start)
	}()

	ctx, cancel := context.WithTimeout(parent, v.options.Timeout)
	defer cancel()

	fail := func(kind contract.FaultKind, message string) Outcome {
		outcome.Faults = append(outcome.Faults, contract.Fault{Kind: kind, Interaction: &id, Message: message})
		outcome.FailedIn = outcome.Phase
		outcome.Phase = PhaseDone
		return outcome
	}

	if interaction.ProviderState != "" {
		outcome.Phase = PhaseStateSetup
		if kind, err := v.setupState(ctx, interaction.ProviderState); err != nil {
			return fail(kind, err.Error())
		}
	}

	req, err := buildRequest(ctx, v.baseURL, interaction.Request)
	if err != nil {
		return fail(contract.MatcherMismatch, err.Error())
	}

	outcome.Phase = PhaseRequestSent
	res, err := v.client.Do(req)
	if err != nil {
		return fail(classify(ctx, err), err.Error())
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fail(classify(ctx, err), errors.Wrap(err, "unable to read provider response").Error())
	}
	outcome.Phase = PhaseResponseReceived

	mismatches := compareResponse(interaction.Response, res, body)
	outcome.Phase = PhaseCompared
	outcome.Faults = contract.MismatchFaults(&id, mismatches)
	if len(outcome.Faults) > 0 {
		outcome.FailedIn = PhaseCompared
	}

	outcome.Phase = PhaseDone
	outcome.Passed = len(outcome.Faults) == 0
	return outcome
}
