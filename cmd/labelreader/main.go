package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := NewCLI(os.Stdout).Run(os.Args[1:]); err != nil {
		log.WithError(err).Fatal("labelreader failed")
	}
}
