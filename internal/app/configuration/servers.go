package configuration

import (
	"context"
	"sync"

	"github.com/form3tech-oss/pact-contract/internal/app/mockserver"
	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var servers sync.Map

// RunningServer is a mock server started through the admin API, along with
// the consumer and provider it mocks.
type RunningServer struct {
	ID       string
	Consumer string
	Provider string
	Server   *mockserver.Server
}

func StartServer(config mockserver.Config, consumer, provider string, interactions []contract.Interaction) (*RunningServer, error) {
	server := mockserver.New(config)
	if err := server.Register(interactions...); err != nil {
		return nil, err
	}
	if err := server.Start(); err != nil {
		return nil, err
	}

	running := &RunningServer{
		ID:       uuid.NewString(),
		Consumer: consumer,
		Provider: provider,
		Server:   server,
	}
	servers.Store(running.ID, running)
	log.WithFields(log.Fields{
		"id":       running.ID,
		"consumer": consumer,
		"provider": provider,
	}).Infof("mock server running at %s", server.URL())
	return running, nil
}

func LoadServer(id string) (*RunningServer, bool) {
	server, loaded := servers.Load(id)
	if !loaded {
		return nil, false
	}
	return server.(*RunningServer), loaded
}

// CloseServer stops a registered server and forgets it. It reports whether
// the id was known.
func CloseServer(ctx context.Context, id string) bool {
	server, loaded := servers.LoadAndDelete(id)
	if !loaded {
		return false
	}
	if err := server.(*RunningServer).Server.Close(ctx); err != nil {
		log.Error(err)
	}
	return true
}

func ShutdownAllServers(ctx context.Context) {
	servers.Range(func(key, _ interface{}) bool {
		CloseServer(ctx, key.(string))
		return true
	})
}

// Document is the contract made of the interactions the server was started with.
func (r *RunningServer) Document() *contract.Document {
	doc := contract.NewDocument(r.Consumer, r.Provider)
	for _, interaction := range r.Server.Interactions() {
		doc.Merge(interaction.Definition())
	}
	return doc
}

// Faults lists everything that went wrong on the server so far, unused
// interactions included.
func (r *RunningServer) Faults() []contract.Fault {
	var faultErr *contract.FaultError
	if err := r.Server.Verify(); err != nil && errors.As(err, &faultErr) {
		return faultErr.Faults
	}
	return []contract.Fault{}
}
