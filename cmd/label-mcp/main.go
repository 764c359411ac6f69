package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/NHMDenmark/NHMDlabelreader/internal/config"
	"github.com/NHMDenmark/NHMDlabelreader/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("label-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("label-mcp - MCP server for specimen label detection")
			fmt.Println()
			fmt.Println("Usage: label-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  LABEL_MCP_LOG_LEVEL=debug        Log level (default warn)")
			fmt.Println("  LABEL_MCP_CONFIG=<file>          labelreader YAML configuration for detection")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(log.WarnLevel)
	if lvl, err := log.ParseLevel(os.Getenv("LABEL_MCP_LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}
	logger.WithFields(log.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
	}).Debug("label MCP server starting")

	cfg := config.Default()
	if path := os.Getenv("LABEL_MCP_CONFIG"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			logger.WithError(err).Fatal("failed to load configuration")
		}
	}
	opts, err := cfg.Pipeline()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	server.Version = Version
	srv := server.New(opts, logger)
	if err := srv.Run(); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}
