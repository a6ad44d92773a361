package mockserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/form3tech-oss/pact-contract/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	defaultDelay    = 500 * time.Millisecond
	defaultDuration = 15 * time.Second
)

var ErrAlreadyStarted = errors.New("mock server already started")

type Config struct {
	Address       string        `env:"MOCK_ADDRESS,default=127.0.0.1:0" json:"address"` // Address to listen on, port 0 picks a free port
	WaitDelay     time.Duration `env:"WAIT_DELAY" json:"wait_delay"`                    // Delay between checks while waiting for interactions
	WaitDuration  time.Duration `env:"WAIT_DURATION" json:"wait_duration"`              // How long to wait for interactions
	RecordHistory bool          `env:"RECORD_HISTORY" json:"record_history"`            // Keep every request, not just the last one
}

// Server is the mock provider. Interactions are registered before Start and
// served until Close; every fault raised while serving is kept for Verify.
type Server struct {
	config       Config
	interactions *Interactions
	faults       faultLog
	notify       *notify
	echo         *echo.Echo

	mu       sync.Mutex
	started  bool
	server   *http.Server
	listener net.Listener
	url      string
}

func New(config Config) *Server {
	if config.Address == "" {
		config.Address = "127.0.0.1:0"
	}
	if config.WaitDelay == 0 {
		config.WaitDelay = defaultDelay
	}
	if config.WaitDuration == 0 {
		config.WaitDuration = defaultDuration
	}

	s := &Server{
		config:       config,
		interactions: &Interactions{},
		notify:       newNotify(),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Any("/*", s.indexHandler)
	s.echo = e
	return s
}

// Register adds interactions to the registry. It fails once the server has
// started.
func (s *Server) Register(interactions ...contract.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	for _, definition := range interactions {
		if err := definition.Validate(); err != nil {
			return errors.Wrapf(err, "unable to register interaction '%s'", definition.Description)
		}
		log.WithFields(log.Fields{
			"interaction": definition.Description,
			"state":       definition.ProviderState,
		}).Info("storing interaction")
		s.interactions.Store(newInteraction(definition, s.config.RecordHistory))
	}
	return nil
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", s.config.Address)
	}

	s.listener = listener
	s.url = fmt.Sprintf("http://%s", listener.Addr().String())
	s.server = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.started = true

	server := s.server
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error(err)
		}
	}()

	log.WithField("url", s.url).Infof("serving %d interaction(s)", s.interactions.Len())
	return nil
}

func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Close stops the server. It is safe to call on a server that never started.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "unable to shut down mock server")
	}
	return nil
}

// Handler exposes the mock without a listener, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Interactions() []*Interaction {
	return s.interactions.All()
}

// Faults returns the faults raised while serving so far.
func (s *Server) Faults() []contract.Fault {
	return s.faults.all()
}

// Verify returns a *contract.FaultError listing every unmatched request,
// mismatch and unused interaction, or nil when there are none.
func (s *Server) Verify() error {
	faults := s.faults.all()
	faults = append(faults, unusedFaults(s.interactions.All())...)
	if len(faults) == 0 {
		return nil
	}
	return &contract.FaultError{Faults: faults}
}

func (s *Server) AddConstraint(constraint Constraint) error {
	if err := constraint.validate(); err != nil {
		return err
	}
	interaction, ok := s.interactions.Load(constraint.Interaction)
	if !ok {
		return errors.Errorf("unable to find interaction '%s' for constraint", constraint.Interaction)
	}
	if constraint.Format == "" {
		constraint.Format = "%v"
	}
	log.Infof("adding constraint to interaction '%s'", interaction.Description)
	interaction.AddConstraint(constraint)
	return nil
}

func (s *Server) AddModifier(modifier *Modifier) error {
	if err := modifier.validate(); err != nil {
		return err
	}
	interaction, ok := s.interactions.Load(modifier.Interaction)
	if !ok {
		return errors.Errorf("unable to find interaction '%s' for modifier", modifier.Interaction)
	}
	log.Infof("adding modifier to interaction '%s'", interaction.Description)
	interaction.AddModifier(modifier)
	return nil
}

// WaitForInteraction blocks until the interaction has received count
// requests.
func (s *Server) WaitForInteraction(ctx context.Context, description string, count int) error {
	interaction, ok := s.interactions.Load(description)
	if !ok {
		return errors.Errorf("cannot wait for interaction '%s', interaction not found", description)
	}

	log.WithField("wait_for", description).Info("waiting")
	err := retryFor(ctx, func(timeLeft time.Duration) bool {
		log.WithFields(log.Fields{
			"wait_for":       description,
			"count":          count,
			"time_remaining": timeLeft,
		}).Debug("retry")
		if interaction.HasRequests(count) {
			return true
		}
		if timeLeft > 0 {
			s.notify.Wait(ctx, timeLeft)
		}
		return false
	}, s.config.WaitDelay, s.config.WaitDuration)

	if err != nil && !interaction.HasRequests(count) {
		return errors.Wrapf(err, "timeout waiting for %d request(s) to '%s'", count, description)
	}
	return nil
}

// WaitForAll blocks until every registered interaction has been invoked.
func (s *Server) WaitForAll(ctx context.Context) error {
	log.Info("waiting for all")
	err := retryFor(ctx, func(timeLeft time.Duration) bool {
		if s.interactions.AllHaveRequests() {
			return true
		}
		if timeLeft > 0 {
			s.notify.Wait(ctx, timeLeft)
		}
		return false
	}, s.config.WaitDelay, s.config.WaitDuration)

	if err != nil && !s.interactions.AllHaveRequests() {
		for _, i := range s.interactions.All() {
			if !i.HasRequests(1) {
				log.Infof("'%s' has no requests", i.Description)
			}
		}
		return errors.Wrap(err, "timeout waiting for interactions to be met")
	}
	return nil
}

func (s *Server) indexHandler(c echo.Context) error {
	req := c.Request()
	method, path := req.Method, req.URL.Path

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read request body. %s", err.Error()))
	}
	request := parseRequest(req, data)

	candidates, ok := s.interactions.FindAll(path, method)
	if !ok {
		s.faults.add(contract.Fault{
			Kind:    contract.UnmatchedRequest,
			Message: fmt.Sprintf("%s %s", method, path),
		})
		return c.JSON(http.StatusInternalServerError, httpresponse.Unmatched(method, path, nil))
	}

	selected, faults := s.selectInteraction(req, request, candidates)
	if len(faults) > 0 {
		for _, f := range faults {
			log.WithField("interaction", selected.Description).Warn(f.Error())
		}
		s.faults.add(faults...)
	}

	selected.StoreRequest(request)
	s.notify.Notify()

	res, err := selected.renderResponse()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("%s", err.Error()))
	}

	log.WithFields(log.Fields{
		"interaction": selected.Description,
		"status":      res.status,
	}).Infof("serving %s %s", method, path)

	for name, values := range res.header {
		for _, v := range values {
			c.Response().Header().Add(name, v)
		}
	}
	if res.body == nil {
		return c.NoContent(res.status)
	}
	return c.Blob(res.status, res.header.Get("Content-Type"), res.body)
}

// selectInteraction picks the first candidate whose full request evaluation
// passes. When none does, the first candidate is served along with its
// faults.
func (s *Server) selectInteraction(req *http.Request, request requestDocument, candidates []*Interaction) (*Interaction, []contract.Fault) {
	var firstFaults []contract.Fault
	for idx, candidate := range candidates {
		faults := candidate.Evaluate(req, request, s.interactions)
		if len(faults) == 0 {
			return candidate, nil
		}
		if idx == 0 {
			firstFaults = faults
		}
	}
	return candidates[0], firstFaults
}
