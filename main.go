package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/dylanpieper/batchGPT/internal/cli/runner"
)

func main() {
	configFile := flag.String("config", "jobs.yaml", "Path to job configuration file")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	jobRunner := runner.New(runner.Options{
		ConfigFile: *configFile,
		Verbose:    *verbose,
	})

	if err := jobRunner.Run(ctx); err != nil {
		log.Fatalf("Run failed: %v", err)
	}
}
