package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/danhigham/tgupload/internal/cli"
)

func main() {
	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
