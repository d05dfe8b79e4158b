// Command oauth-token prints an OAuth 2.0 access token for the credential
// configured through OAUTH_* environment variables, logging in when no usable
// token or refresh token is stored.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/giantswarm/oauth-credentials/internal/tokencli"
)

// version is set at build time
var version = "dev"

func main() {
	cfg, err := tokencli.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		exitf("parse configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tokencli.Run(ctx, cfg, version, os.Stdout, os.Stderr); err != nil {
		stop()
		exitf("oauth-token: %v", err)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
