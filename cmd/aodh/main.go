// Command aodh is a command-line client for the alarm service.
package main

import (
	"context"
	"os"

	"github.com/roach88/aodh/internal/cli"
)

func main() {
	ctx, stop := cli.NotifyContext(context.Background())
	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
