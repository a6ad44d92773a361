package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/form3tech-oss/pact-contract/internal/app/configuration"
	log "github.com/sirupsen/logrus"
)

func main() {
	config, err := configuration.NewFromEnv()
	if err != nil {
		log.Fatal(err)
	}

	log.Infof("serving admin api on port %d, contracts go to %s", config.AdminPort, config.ContractDir)
	adminServer := configuration.ServeAdminAPI(config)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := adminServer.Shutdown(ctx); err != nil {
		log.Error(err)
	}

	configuration.ShutdownAllServers(ctx)
}
