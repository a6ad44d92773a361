package consumer

import (
	"context"

	"github.com/form3tech-oss/pact-contract/internal/app/mockserver"
)

// MockServer is the handle a consumer test gets for the running mock
// provider.
type MockServer interface {
	URL() string
	WaitForAll(ctx context.Context) error
	WaitForInteraction(ctx context.Context, description string, count int) error
	AddConstraint(constraint Constraint) error
	AddModifier(modifier Modifier) error
}

// Constraint adds an assertion on the requests of an interaction on top of
// its matchers. Path is a JSONPath over {method, path, query, headers, body}.
// Values are rendered with Format ("%v" by default); with Source set they are
// JSONPaths over the last request of the source interaction.
type Constraint struct {
	Interaction string
	Path        string
	Format      string
	Values      []interface{}
	Source      string
}

// Modifier overrides the response served for an interaction, at "$.status"
// or "$.body.<path>", optionally only on the given attempt.
type Modifier struct {
	Interaction string
	Path        string
	Value       interface{}
	Attempt     *int
}

type mockServer struct {
	server *mockserver.Server
}

func (m *mockServer) URL() string {
	return m.server.URL()
}

func (m *mockServer) WaitForAll(ctx context.Context) error {
	return m.server.WaitForAll(ctx)
}

func (m *mockServer) WaitForInteraction(ctx context.Context, description string, count int) error {
	return m.server.WaitForInteraction(ctx, description, count)
}

func (m *mockServer) AddConstraint(constraint Constraint) error {
	return m.server.AddConstraint(mockserver.Constraint{
		Interaction: constraint.Interaction,
		Path:        constraint.Path,
		Format:      constraint.Format,
		Values:      constraint.Values,
		Source:      constraint.Source,
	})
}

func (m *mockServer) AddModifier(modifier Modifier) error {
	return m.server.AddModifier(&mockserver.Modifier{
		Interaction: modifier.Interaction,
		Path:        modifier.Path,
		Value:       modifier.Value,
		Attempt:     modifier.Attempt,
	})
}
