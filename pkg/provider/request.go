package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/form3tech-oss/pact-contract/pkg/matcher"
	"github.com/pkg/errors"
)

// buildRequest turns the request expectations into a concrete request using
// the examples of their matchers.
func buildRequest(ctx context.Context, base *url.URL, spec contract.RequestSpec) (*http.Request, error) {
	target := *base
	target.Path = strings.TrimSuffix(base.Path, "/") + spec.PathExample()
	target.RawPath = ""

	if len(spec.Query) > 0 {
		query := url.Values{}
		for name, node := range spec.Query {
			query.Set(name, contract.ExampleText(node.Example()))
		}
		target.RawQuery = query.Encode()
	}

	header := http.Header{}
	for name, node := range spec.Headers {
		header.Set(name, contract.ExampleText(node.Example()))
	}

	var body io.Reader
	if spec.Body != nil {
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", contract.MediaTypeJSON)
		}
		data, err := contract.ExampleBody(header.Get("Content-Type"), spec.Body.Example())
		if err != nil {
			return nil, errors.Wrap(err, "unable to encode request body")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, target.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build request")
	}
	req.Header = header
	return req, nil
}

// compareResponse evaluates status, declared headers and body, collecting
// every mismatch.
func compareResponse(spec contract.ResponseSpec, res *http.Response, body []byte) []matcher.Mismatch {
	var mismatches []matcher.Mismatch
	mismatches = append(mismatches, matcher.EvaluateAt("status", matcher.Lit(spec.Status), res.StatusCode).Mismatches...)

	if len(spec.Headers) > 0 {
		actual := make(map[string]interface{}, len(spec.Headers))
		for name := range spec.Headers {
			if values := res.Header.Values(name); len(values) > 0 {
				actual[name] = strings.Join(values, ", ")
			}
		}
		mismatches = append(mismatches, matcher.EvaluateAt("headers", matcher.Object{Fields: spec.Headers}, actual).Mismatches...)
	}

	if spec.Body != nil {
		mismatches = append(mismatches, matcher.EvaluateAt("body", spec.Body, decodeBody(body)).Mismatches...)
	}
	return mismatches
}

// decodeBody reads JSON when possible and falls back to the raw text. An
// empty body is nil.
func decodeBody(data []byte) interface{} {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}

// classify maps a transport error to a fault kind. Deadlines and broken
// exchanges fail one interaction; only a provider that cannot be dialled
// aborts the run.
func classify(ctx context.Context, err error) contract.FaultKind {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return contract.TimeoutError
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return contract.TimeoutError
	}
	if isDialError(err) {
		return contract.ProviderUnreachable
	}
	return contract.ProviderError
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
