package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type stateChange struct {
	State  string `json:"state"`
	Action string `json:"action"`
}

// setupState runs the handler registered for state, falling back to the
// state change URL. The returned kind classifies a failure.
func (v *Verifier) setupState(ctx context.Context, state string) (contract.FaultKind, error) {
	logger := log.WithField("state", state)

	if handler, ok := v.options.StateHandlers[state]; ok {
		logger.Debug("running state handler")
		select {
		case err := <-runHandler(ctx, handler):
			if err == nil {
				return "", nil
			}
			if ctx.Err() != nil {
				return contract.TimeoutError, errors.Wrapf(err, "state handler for %q did not finish in time", state)
			}
			return contract.StateHandlerFailure, errors.Wrapf(err, "state handler for %q failed", state)
		case <-ctx.Done():
			logger.Warn("state handler still running after the interaction timed out")
			return contract.TimeoutError, errors.Wrapf(ctx.Err(), "state handler for %q did not finish in time", state)
		}
	}

	if v.options.StateChangeURL == "" {
		return contract.MissingStateHandler, errors.Errorf("no state handler registered for %q", state)
	}

	logger.WithField("url", v.options.StateChangeURL).Debug("posting state change")
	if err := v.postStateChange(ctx, state); err != nil {
		if ctx.Err() != nil {
			return contract.TimeoutError, err
		}
		return contract.StateHandlerFailure, err
	}
	return "", nil
}

// runHandler runs handler in its own goroutine so that a handler ignoring
// ctx cannot hold the run past its timeout. A panic is reported as an error.
func runHandler(ctx context.Context, handler StateHandler) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.Errorf("state handler panicked: %v", r)
			}
		}()
		done <- handler(ctx)
	}()
	return done
}

func (v *Verifier) postStateChange(ctx context.Context, state string) error {
	payload, err := json.Marshal(stateChange{State: state, Action: "setup"})
	if err != nil {
		return errors.Wrap(err, "unable to encode state change")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.options.StateChangeURL, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "unable to build state change request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := v.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "state change for %q failed", state)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return errors.Errorf("state change for %q returned status %d", state, res.StatusCode)
	}
	return nil
}
