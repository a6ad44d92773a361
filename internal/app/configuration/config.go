package configuration

import (
	"context"
	"time"

	"github.com/form3tech-oss/pact-contract/internal/app/mockserver"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
)

// Config configures the contract-mock daemon.
type Config struct {
	AdminPort   int    `env:"ADMIN_PORT,default=8080"`       // Port of the admin API
	ContractDir string `env:"CONTRACT_DIR,default=./pacts"` // Where verified contracts are written
	Mock        mockserver.Config
}

// VerifierConfig holds the defaults of the contract-verify command.
type VerifierConfig struct {
	ProviderBaseURL string        `env:"PROVIDER_BASE_URL"`
	StateChangeURL  string        `env:"STATE_CHANGE_URL"`
	ProviderVersion string        `env:"PROVIDER_VERSION"`
	Timeout         time.Duration `env:"VERIFY_TIMEOUT,default=10s"`
}

func NewFromEnv() (Config, error) {
	var config Config
	err := envconfig.Process(context.Background(), &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}

func NewVerifierFromEnv() (VerifierConfig, error) {
	var config VerifierConfig
	err := envconfig.Process(context.Background(), &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}
