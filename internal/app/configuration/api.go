package configuration

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/form3tech-oss/pact-contract/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-contract/internal/app/mockserver"
	"github.com/form3tech-oss/pact-contract/pkg/contract"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ServerRequest is the body of POST /servers.
type ServerRequest struct {
	Consumer     string                 `json:"consumer"`
	Provider     string                 `json:"provider"`
	Config       *mockserver.Config     `json:"config,omitempty"`
	Interactions []contract.Interaction `json:"interactions"`
}

type ServerResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type VerificationResponse struct {
	Faults []contract.Fault `json:"faults"`
}

type ContractResponse struct {
	Path string `json:"path"`
}

type adminAPI struct {
	defaults mockserver.Config
	writer   *contract.Writer
}

func NewAdminAPI(config Config) *echo.Echo {
	api := &adminAPI{
		defaults: config.Mock,
		writer:   contract.NewWriter(config.ContractDir),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/ready", api.readinessHandler)
	e.POST("/servers", api.postServersHandler)
	e.DELETE("/servers", api.deleteServersHandler)
	e.DELETE("/servers/:id", api.deleteServerHandler)
	e.GET("/servers/:id/verification", api.verificationHandler)
	e.POST("/servers/:id/contract", api.contractHandler)
	e.POST("/servers/:id/constraints", api.constraintsHandler)
	e.POST("/servers/:id/modifiers", api.modifiersHandler)
	e.GET("/servers/:id/wait", api.waitHandler)
	return e
}

func ServeAdminAPI(config Config) *echo.Echo {
	adminServer := NewAdminAPI(config)

	go func() {
		address := fmt.Sprintf(":%d", config.AdminPort)
		if err := adminServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	return adminServer
}

func (a *adminAPI) readinessHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (a *adminAPI) postServersHandler(c echo.Context) error {
	var request ServerRequest
	if err := c.Bind(&request); err != nil {
		return c.JSON(
			http.StatusBadRequest,
			httpresponse.Errorf("unable to parse mock server request. %s", err.Error()),
		)
	}
	if request.Consumer == "" || request.Provider == "" {
		return c.JSON(http.StatusBadRequest, httpresponse.Error("consumer and provider are required"))
	}

	running, err := StartServer(a.serverConfig(request.Config), request.Consumer, request.Provider, request.Interactions)
	if err != nil {
		return c.JSON(
			http.StatusInternalServerError,
			httpresponse.Errorf("unable to start mock server. %s", err.Error()),
		)
	}

	return c.JSON(http.StatusCreated, ServerResponse{ID: running.ID, URL: running.Server.URL()})
}

// serverConfig fills the fields a request left empty from the daemon's
// defaults.
func (a *adminAPI) serverConfig(requested *mockserver.Config) mockserver.Config {
	config := a.defaults
	if requested == nil {
		return config
	}
	if requested.Address != "" {
		config.Address = requested.Address
	}
	if requested.WaitDelay != 0 {
		config.WaitDelay = requested.WaitDelay
	}
	if requested.WaitDuration != 0 {
		config.WaitDuration = requested.WaitDuration
	}
	config.RecordHistory = config.RecordHistory || requested.RecordHistory
	return config
}

func (a *adminAPI) deleteServersHandler(c echo.Context) error {
	log.Infof("closing all mock servers")
	ShutdownAllServers(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

func (a *adminAPI) deleteServerHandler(c echo.Context) error {
	if !CloseServer(c.Request().Context(), c.Param("id")) {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("mock server %s not found", c.Param("id")))
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *adminAPI) verificationHandler(c echo.Context) error {
	running, ok := LoadServer(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("mock server %s not found", c.Param("id")))
	}
	return c.JSON(http.StatusOK, VerificationResponse{Faults: running.Faults()})
}

// contractHandler writes the contract of a server whose run is free of
// faults.
func (a *adminAPI) contractHandler(c echo.Context) error {
	running, ok := LoadServer(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("mock server %s not found", c.Param("id")))
	}

	if faults := running.Faults(); len(faults) > 0 {
		apiErr := httpresponse.Errorf("mock server %s has %d fault(s), contract not written", running.ID, len(faults))
		apiErr.Faults = faults
		return c.JSON(http.StatusConflict, apiErr)
	}

	path, err := a.writer.Write(running.Document())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("%s", err.Error()))
	}
	return c.JSON(http.StatusCreated, ContractResponse{Path: path})
}

func (a *adminAPI) constraintsHandler(c echo.Context) error {
	running, ok := LoadServer(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("mock server %s not found", c.Param("id")))
	}

	var constraint mockserver.Constraint
	if err := c.Bind(&constraint); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load constraint. %s", err.Error()))
	}
	if err := running.Server.AddConstraint(constraint); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("%s", err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *adminAPI) modifiersHandler(c echo.Context) error {
	running, ok := LoadServer(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("mock server %s not found", c.Param("id")))
	}

	var modifier mockserver.Modifier
	if err := c.Bind(&modifier); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load modifier. %s", err.Error()))
	}
	if err := running.Server.AddModifier(&modifier); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("%s", err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *adminAPI) waitHandler(c echo.Context) error {
	running, ok := LoadServer(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("mock server %s not found", c.Param("id")))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Minute)
	defer cancel()

	var err error
	if waitFor := c.QueryParam("interaction"); waitFor != "" {
		count, convErr := strconv.Atoi(c.QueryParam("count"))
		if convErr != nil {
			count = 1
		}
		err = running.Server.WaitForInteraction(ctx, waitFor, count)
	} else {
		err = running.Server.WaitForAll(ctx)
	}

	if err != nil {
		return c.JSON(http.StatusRequestTimeout, httpresponse.Errorf("%s", err.Error()))
	}
	return c.NoContent(http.StatusOK)
}
