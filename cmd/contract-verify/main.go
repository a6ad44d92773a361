package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	cmd, err := newVerifyCommand()
	if err != nil {
		log.Fatal(err)
	}
	if err := cmd.Execute(); err != nil {
		code := exitCode(err)
		if code == 2 {
			log.Error(err)
		}
		os.Exit(code)
	}
}
