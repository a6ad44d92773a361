package main

import (
	"context"

	"github.com/form3tech-oss/pact-contract/internal/app/configuration"
	"github.com/form3tech-oss/pact-contract/pkg/provider"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// failedError is returned when verification ran but did not pass, so the
// report is already printed.
type failedError struct {
	code int
}

func (e *failedError) Error() string {
	return "provider verification failed"
}

func exitCode(err error) int {
	var failed *failedError
	if errors.As(err, &failed) {
		return failed.code
	}
	return 2
}

func newVerifyCommand() (*cobra.Command, error) {
	defaults, err := configuration.NewVerifierFromEnv()
	if err != nil {
		return nil, err
	}

	options := provider.Options{}
	var verbose bool

	cmd := &cobra.Command{
		Use:           "contract-verify [contract files...]",
		Short:         "Replay contract files against a running provider",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.WarnLevel)
			}

			verifier, err := provider.New(options)
			if err != nil {
				return err
			}

			report, err := verifier.VerifyFiles(context.Background(), args...)
			if err != nil {
				return errors.Wrap(err, "unable to load contracts")
			}
			if err := report.Print(cmd.OutOrStdout()); err != nil {
				return err
			}
			if !report.Success() {
				return &failedError{code: report.ExitCode()}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&options.ProviderBaseURL, "provider-base-url", defaults.ProviderBaseURL, "Base URL of the provider under test")
	flags.StringVar(&options.StateChangeURL, "state-change-url", defaults.StateChangeURL, "URL that receives provider state setup requests")
	flags.StringVar(&options.ProviderVersion, "provider-version", defaults.ProviderVersion, "Version of the provider, shown in the report")
	flags.DurationVar(&options.Timeout, "timeout", defaults.Timeout, "Time allowed per interaction, state setup included")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log every step of the run")

	return cmd, nil
}
