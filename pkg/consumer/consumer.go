// Package consumer records a consumer's expectations of a provider as
// interactions, checks the consumer's code against a mock provider serving
// them and persists the resulting contract.
package consumer

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/form3tech-oss/pact-contract/internal/app/mockserver"
	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	defaultDir          = "./pacts"
	defaultHost         = "127.0.0.1"
	defaultCloseTimeout = 5 * time.Second
)

type Config struct {
	Consumer     string
	Provider     string
	Dir          string        // Directory contracts are written to, ./pacts by default
	Host         string        // Mock server host, 127.0.0.1 by default
	Port         int           // Mock server port, 0 picks a free port
	SpecVersion  string        // Version recorded in the contract, contract.DefaultSpecVersion by default
	WaitDelay    time.Duration // Delay between checks in WaitFor*
	WaitDuration time.Duration // How long WaitFor* blocks
}

// Pact collects the interactions of one consumer/provider pair.
type Pact struct {
	config       Config
	writer       *contract.Writer
	mu           sync.Mutex
	interactions []*Interaction
}

func New(config Config) *Pact {
	if config.Dir == "" {
		config.Dir = defaultDir
	}
	if config.Host == "" {
		config.Host = defaultHost
	}
	if config.SpecVersion == "" {
		config.SpecVersion = contract.DefaultSpecVersion
	}
	return &Pact{
		config: config,
		writer: contract.NewWriter(config.Dir),
	}
}

// AddInteraction starts describing a new interaction. It is registered with
// the mock server on the next ExecuteTest.
func (p *Pact) AddInteraction() *Interaction {
	i := &Interaction{}
	p.mu.Lock()
	p.interactions = append(p.interactions, i)
	p.mu.Unlock()
	return i
}

// ExecuteTest serves the pending interactions on a fresh mock server, runs
// test against it and verifies that every interaction was exercised as
// described. Only a run without faults writes the contract. Pending
// interactions are cleared whatever the outcome.
func (p *Pact) ExecuteTest(test func(MockServer) error) error {
	doc, err := p.document()
	if err != nil {
		return err
	}

	server := mockserver.New(mockserver.Config{
		Address:      net.JoinHostPort(p.config.Host, strconv.Itoa(p.config.Port)),
		WaitDelay:    p.config.WaitDelay,
		WaitDuration: p.config.WaitDuration,
	})
	if err := server.Register(doc.Interactions...); err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultCloseTimeout)
		defer cancel()
		if err := server.Close(ctx); err != nil {
			log.Warn(err)
		}
	}()

	if err := test(&mockServer{server: server}); err != nil {
		return errors.Wrap(err, "consumer test failed")
	}

	if err := server.Verify(); err != nil {
		log.WithFields(log.Fields{
			"consumer": p.config.Consumer,
			"provider": p.config.Provider,
		}).Error(err)
		return err
	}

	_, err = p.writer.Write(doc)
	return err
}

// document snapshots and clears the pending interactions. Interactions
// sharing an identity collapse into the last definition.
func (p *Pact) document() (*contract.Document, error) {
	p.mu.Lock()
	pending := p.interactions
	p.interactions = nil
	p.mu.Unlock()

	if len(pending) == 0 {
		return nil, errors.New("no interactions to test")
	}

	doc := contract.NewDocument(p.config.Consumer, p.config.Provider)
	doc.SpecVersion = p.config.SpecVersion
	for _, i := range pending {
		if i.err != nil {
			return nil, i.err
		}
		doc.Merge(i.interaction)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}
