package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/form3tech-oss/pact-contract/pkg/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stateShipped = "order 42 exists with status SHIPPED"
	stateMissing = "no order with id 999 exists"
)

func ordersContract() *contract.Document {
	doc := contract.NewDocument("MobileApp", "OrdersAPI")
	doc.Merge(
		contract.Interaction{
			Description:   "a request for order 42",
			ProviderState: stateShipped,
			Request:       contract.RequestSpec{Method: "GET", Path: matcher.Lit("/orders/42")},
			Response: contract.ResponseSpec{
				Status: 200,
				Body: matcher.From(map[string]interface{}{
					"id":     "42",
					"status": matcher.Like("SHIPPED"),
					"eta":    matcher.Term(`.+`, "2025-08-20T12:00:00Z"),
				}),
			},
		},
		contract.Interaction{
			Description:   "a request for a missing order",
			ProviderState: stateMissing,
			Request:       contract.RequestSpec{Method: "GET", Path: matcher.Lit("/orders/999")},
			Response: contract.ResponseSpec{
				Status: 404,
				Body: matcher.From(map[string]interface{}{
					"error":   matcher.Like("ORDER_NOT_FOUND"),
					"message": matcher.Include("not found"),
				}),
			},
		},
	)
	return doc
}

func ordersProvider(notFoundMessage string, delay time.Duration) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/42", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"42","status":"DELIVERED","eta":"2025-09-01T10:00:00Z","carrier":"UPS"}`)
	})
	mux.HandleFunc("/orders/999", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":"ORDER_NOT_FOUND","message":%q}`, notFoundMessage)
	})
	return mux
}

type stateRecorder struct {
	mu     sync.Mutex
	states []string
}

func (s *stateRecorder) handler(state string) StateHandler {
	return func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.states = append(s.states, state)
		return nil
	}
}

func (s *stateRecorder) handlers() map[string]StateHandler {
	return map[string]StateHandler{
		stateShipped: s.handler(stateShipped),
		stateMissing: s.handler(stateMissing),
	}
}

func newVerifier(t *testing.T, options Options) *Verifier {
	t.Helper()
	v, err := New(options)
	require.NoError(t, err)
	return v
}

func TestVerifyMatchingProvider(t *testing.T) {
	provider := httptest.NewServer(ordersProvider("Order 999 not found", 0))
	defer provider.Close()

	states := &stateRecorder{}
	v := newVerifier(t, Options{
		ProviderBaseURL: provider.URL,
		StateHandlers:   states.handlers(),
		ProviderVersion: "1.4.2",
	})

	report := v.Verify(context.Background(), ordersContract())

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, 0, report.Failed)
	assert.True(t, report.Success())
	assert.Equal(t, 0, report.ExitCode())
	assert.Equal(t, "OrdersAPI", report.Provider)
	assert.Equal(t, "1.4.2", report.ProviderVersion)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []string{stateShipped, stateMissing}, states.states)
	for _, o := range report.Outcomes {
		assert.Equal(t, PhaseDone, o.Phase)
		assert.Equal(t, "MobileApp", o.Consumer)
	}
}

func TestVerifyBrokenProvider(t *testing.T) {
	provider := httptest.NewServer(ordersProvider("Order not located", 0))
	defer provider.Close()

	v := newVerifier(t, Options{
		ProviderBaseURL: provider.URL,
		StateHandlers:   (&stateRecorder{}).handlers(),
	})

	report := v.Verify(context.Background(), ordersContract())

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Passed)
	assert.False(t, report.Success())
	assert.Equal(t, 1, report.ExitCode())

	failed := report.Outcomes[1]
	assert.Equal(t, "a request for a missing order", failed.Interaction.Description)
	assert.Equal(t, PhaseCompared, failed.FailedIn)
	require.Len(t, failed.Faults, 1)
	assert.Equal(t, contract.MatcherMismatch, failed.Faults[0].Kind)
	assert.Equal(t, "body.message", failed.Faults[0].Path)
	assert.Equal(t, "Order not located", failed.Faults[0].Actual)
}

func TestVerifyCollectsEveryMismatch(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"id":42,"status":["SHIPPED"]}`)
	}))
	defer provider.Close()

	doc := ordersContract()
	doc.Interactions = doc.Interactions[:1]
	doc.Interactions[0].ProviderState = ""
	v := newVerifier(t, Options{ProviderBaseURL: provider.URL})

	report := v.Verify(context.Background(), doc)

	require.Len(t, report.Outcomes, 1)
	paths := []string{}
	for _, f := range report.Outcomes[0].Faults {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{"body.id", "body.status", "body.eta"}, paths)
}

func TestVerifyMissingStateHandlerFailsOnlyThatInteraction(t *testing.T) {
	provider := httptest.NewServer(ordersProvider("not found", 0))
	defer provider.Close()

	states := &stateRecorder{}
	v := newVerifier(t, Options{
		ProviderBaseURL: provider.URL,
		StateHandlers:   map[string]StateHandler{stateShipped: states.handler(stateShipped)},
	})

	report := v.Verify(context.Background(), ordersContract())

	assert.False(t, report.Aborted)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)
	missing := report.Outcomes[1]
	require.Len(t, missing.Faults, 1)
	assert.Equal(t, contract.MissingStateHandler, missing.Faults[0].Kind)
	assert.Equal(t, PhaseStateSetup, missing.FailedIn)
	assert.Contains(t, missing.Faults[0].Error(), stateMissing)
}

func TestVerifyStateHandlerFailure(t *testing.T) {
	provider := httptest.NewServer(ordersProvider("not found", 0))
	defer provider.Close()

	v := newVerifier(t, Options{
		ProviderBaseURL: provider.URL,
		StateHandlers: map[string]StateHandler{
			stateShipped: func(context.Context) error { return fmt.Errorf("database is read only") },
			stateMissing: func(context.Context) error { return nil },
		},
	})

	report := v.Verify(context.Background(), ordersContract())

	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Outcomes[0].Faults, 1)
	assert.Equal(t, contract.StateHandlerFailure, report.Outcomes[0].Faults[0].Kind)
	assert.Contains(t, report.Outcomes[0].Faults[0].Message, "database is read only")
	assert.True(t, report.Outcomes[1].Passed)
}

func TestVerifyPanickingStateHandlerFailsOnlyThatInteraction(t *testing.T) {
	provider := httptest.NewServer(ordersProvider("not found", 0))
	defer provider.Close()

	v := newVerifier(t, Options{
		ProviderBaseURL: provider.URL,
		StateHandlers: map[string]StateHandler{
			stateShipped: func(context.Context) error { panic("db seed failed") },
			stateMissing: func(context.Context) error { return nil },
		},
	})

	var report *Report
	require.NotPanics(t, func() {
		report = v.Verify(context.Background(), ordersContract())
	})

	assert.False(t, report.Aborted)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Outcomes[0].Faults, 1)
	assert.Equal(t, contract.StateHandlerFailure, report.Outcomes[0].Faults[0].Kind)
	assert.Contains(t, report.Outcomes[0].Faults[0].Message, "db seed failed")
	assert.Equal(t, PhaseStateSetup, report.Outcomes[0].FailedIn)
	assert.True(t, report.Outcomes[1].Passed)
}

func TestVerifySlowStateHandlerIsBoundedByTimeout(t *testing.T) {
	provider := httptest.NewServer(ordersProvider("not found", 0))
	defer provider.Close()

	release := make(chan struct{})
	defer close(release)

	v := newVerifier(t, Options{
		ProviderBaseURL: provider.URL,
		Timeout:         200 * time.Millisecond,
		StateHandlers: map[string]StateHandler{
			stateShipped: func(context.Context) error {
				<-release
				return nil
			},
			stateMissing: func(context.Context) error { return nil },
		},
	})

	start := time.Now()
	report := v.Verify(context.Background(), ordersContract())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, report.Aborted)
	require.Len(t, report.Outcomes[0].Faults, 1)
	assert.Equal(t, contract.TimeoutError, report.Outcomes[0].Faults[0].Kind)
	assert.Equal(t, PhaseStateSetup, report.Outcomes[0].FailedIn)
	assert.True(t, report.Outcomes[1].Passed)
}

func TestVerifyDroppedConnectionFailsOnlyThatInteraction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/42", func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	})
	mux.Handle("/orders/999", ordersProvider("not found", 0))
	provider := httptest.NewServer(mux)
	defer provider.Close()

	v := newVerifier(t, Options{
		ProviderBaseURL: provider.URL,
		StateHandlers:   (&stateRecorder{}).handlers(),
	})

	report := v.Verify(context.Background(), ordersContract())

	assert.False(t, report.Aborted)
	assert.Equal(t, 0, report.Skipped)
	require.Len(t, report.Outcomes, 2)
	require.Len(t, report.Outcomes[0].Faults, 1)
	assert.Equal(t, contract.ProviderError, report.Outcomes[0].Faults[0].Kind)
	assert.Equal(t, PhaseRequestSent, report.Outcomes[0].FailedIn)
	assert.True(t, report.Outcomes[1].Passed)
}

func TestClassify(t *testing.T) {
	expired, cancel := context.WithCancel(context.Background())
	cancel()

	for _, tc := range []struct {
		name string
		ctx  context.Context
		err  error
		want contract.FaultKind
	}{
		{"refused", context.Background(), &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, contract.ProviderUnreachable},
		{"unknown host", context.Background(), &net.DNSError{Err: "no such host", Name: "orders.invalid"}, contract.ProviderUnreachable},
		{"reset", context.Background(), &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, contract.ProviderError},
		{"eof", context.Background(), io.ErrUnexpectedEOF, contract.ProviderError},
		{"deadline", context.Background(), context.DeadlineExceeded, contract.TimeoutError},
		{"expired context", expired, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, contract.TimeoutError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.ctx, tc.err))
		})
	}
}

func TestVerifyTimeoutFailsOnlyThatInteraction(t *testing.T) {
	provider := httptest.NewServer(ordersProvider("not found", 2*time.Second))
	defer provider.Close()

	v := newVerifier(t, Options{
		ProviderBaseURL: provider.URL,
		StateHandlers:   (&stateRecorder{}).handlers(),
		Timeout:         100 * time.Millisecond,
	})

	report := v.Verify(context.Background(), ordersContract())

	assert.False(t, report.Aborted)
	require.Len(t, report.Outcomes, 2)
	require.Len(t, report.Outcomes[0].Faults, 1)
	assert.Equal(t, contract.TimeoutError, report.Outcomes[0].Faults[0].Kind)
	assert.Equal(t, PhaseRequestSent, report.Outcomes[0].FailedIn)
	assert.True(t, report.Outcomes[1].Passed)
}

type refusingTransport struct {
	path string
}

func (rt refusingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Path == rt.path {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestVerifyUnreachableProviderAbortsRemainingInteractions(t *testing.T) {
	provider := httptest.NewServer(ordersProvider("not found", 0))
	defer provider.Close()

	doc := ordersContract()
	third := doc.Interactions[0]
	third.Description = "another request for order 42"
	doc.Merge(third)

	v := newVerifier(t, Options{
		ProviderBaseURL: provider.URL,
		StateHandlers:   (&stateRecorder{}).handlers(),
		HTTPClient:      &http.Client{Transport: refusingTransport{path: "/orders/999"}},
	})

	report := v.Verify(context.Background(), doc)

	assert.True(t, report.Aborted)
	assert.False(t, report.Success())
	assert.Equal(t, 1, report.ExitCode())
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Outcomes, 2)
	assert.True(t, report.Outcomes[0].Passed)
	assert.Equal(t, contract.ProviderUnreachable, report.Outcomes[1].Faults[0].Kind)
	assert.Contains(t, report.AbortReason, contract.ErrProviderUnreachable.Error())
}

func TestVerifyClosedProvider(t *testing.T) {
	provider := httptest.NewServer(ordersProvider("not found", 0))
	baseURL := provider.URL
	provider.Close()

	v := newVerifier(t, Options{
		ProviderBaseURL: baseURL,
		StateHandlers:   (&stateRecorder{}).handlers(),
	})

	report := v.Verify(context.Background(), ordersContract())

	assert.True(t, report.Aborted)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, contract.ProviderUnreachable, report.Outcomes[0].Faults[0].Kind)
	assert.Equal(t, 1, report.Skipped)
}

func TestVerifyUsesStateChangeURL(t *testing.T) {
	var mu sync.Mutex
	var changes []stateChange
	mux := http.NewServeMux()
	mux.Handle("/orders/", ordersProvider("not found", 0))
	mux.HandleFunc("/_states", func(w http.ResponseWriter, r *http.Request) {
		var change stateChange
		if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		changes = append(changes, change)
		mu.Unlock()
		if change.State == stateMissing {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	provider := httptest.NewServer(mux)
	defer provider.Close()

	v := newVerifier(t, Options{
		ProviderBaseURL: provider.URL,
		StateChangeURL:  provider.URL + "/_states",
	})

	report := v.Verify(context.Background(), ordersContract())

	assert.Equal(t, []stateChange{
		{State: stateShipped, Action: "setup"},
		{State: stateMissing, Action: "setup"},
	}, changes)
	assert.True(t, report.Outcomes[0].Passed)
	require.Len(t, report.Outcomes[1].Faults, 1)
	assert.Equal(t, contract.StateHandlerFailure, report.Outcomes[1].Faults[0].Kind)
	assert.Contains(t, report.Outcomes[1].Faults[0].Message, "returned status 500")
}

func TestVerifySendsRequestExamples(t *testing.T) {
	type received struct {
		method, path, page, accept, contentType string
		body                                    map[string]interface{}
	}
	got := make(chan received, 1)
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- received{
			method:      r.Method,
			path:        r.URL.Path,
			page:        r.URL.Query().Get("page"),
			accept:      r.Header.Get("Accept"),
			contentType: r.Header.Get("Content-Type"),
			body:        body,
		}
		w.Header().Set("Location", "/orders/43")
		w.WriteHeader(http.StatusCreated)
	}))
	defer provider.Close()

	doc := contract.NewDocument("MobileApp", "OrdersAPI")
	doc.Merge(contract.Interaction{
		Description: "a request to create an order",
		Request: contract.RequestSpec{
			Method:  "POST",
			Path:    matcher.Term(`/customers/\d+/orders`, "/customers/7/orders"),
			Query:   map[string]matcher.Node{"page": matcher.Like("2")},
			Headers: map[string]matcher.Node{"Accept": matcher.Lit("application/json")},
			Body:    matcher.From(map[string]interface{}{"items": matcher.Each(matcher.Like("sku-1"), 2)}),
		},
		Response: contract.ResponseSpec{
			Status:  201,
			Headers: map[string]matcher.Node{"Location": matcher.Term(`/orders/\d+`, "/orders/1")},
		},
	})

	report := newVerifier(t, Options{ProviderBaseURL: provider.URL + "/"}).Verify(context.Background(), doc)

	require.True(t, report.Success(), "faults: %v", report.Faults())
	r := <-got
	assert.Equal(t, "POST", r.method)
	assert.Equal(t, "/customers/7/orders", r.path)
	assert.Equal(t, "2", r.page)
	assert.Equal(t, "application/json", r.accept)
	assert.Equal(t, "application/json", r.contentType)
	assert.Equal(t, map[string]interface{}{"items": []interface{}{"sku-1", "sku-1"}}, r.body)
}

func TestVerifyFiles(t *testing.T) {
	provider := httptest.NewServer(ordersProvider("not found", 0))
	defer provider.Close()

	path, err := contract.NewWriter(t.TempDir()).Write(ordersContract())
	require.NoError(t, err)

	v := newVerifier(t, Options{ProviderBaseURL: provider.URL, StateHandlers: (&stateRecorder{}).handlers()})
	report, err := v.VerifyFiles(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, report.Success())

	_, err = v.VerifyFiles(context.Background(), path+".missing")
	assert.Error(t, err)
}

func TestReportPrint(t *testing.T) {
	provider := httptest.NewServer(ordersProvider("Order not located", 0))
	defer provider.Close()

	v := newVerifier(t, Options{
		ProviderBaseURL: provider.URL,
		StateHandlers:   (&stateRecorder{}).handlers(),
		ProviderVersion: "1.4.2",
	})
	report := v.Verify(context.Background(), ordersContract())

	var out bytes.Buffer
	require.NoError(t, report.Print(&out))

	printed := out.String()
	assert.Contains(t, printed, "Verifying provider OrdersAPI (1.4.2)")
	assert.Contains(t, printed, "PASS")
	assert.Contains(t, printed, "FAIL")
	assert.Contains(t, printed, `at body.message: expected a string including "not found" but got "Order not located"`)
	assert.Contains(t, printed, "2 interaction(s), 1 passed, 1 failed, 0 skipped")
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	_, err := New(Options{ProviderBaseURL: "/orders"})
	assert.Error(t, err)
}
