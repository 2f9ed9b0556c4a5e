// Command pseval exports evaluation data from a SmartCampus pub/sub database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pseval: %v\n", err)
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}
