// Package main is the operator CLI for the registration API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/assiworks/opening-registration/internal/client"
	"github.com/assiworks/opening-registration/internal/transport"
)

var (
	apiURLs    []string
	adminToken string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "regadmin",
	Short: "Operate the AssiWorks opening registration API",
	Long: `Operate the registration API from a terminal.

The API base URL is taken from --api (repeatable, tried in order) or the
comma-separated ADMIN_API_URLS variable. Admin commands need --token or
ADMIN_TOKEN.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVar(&apiURLs, "api", nil, "API base URL (repeatable, tried in order)")
	rootCmd.PersistentFlags().StringVar(&adminToken, "token", "", "admin token (default $ADMIN_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", client.Message(err))
		os.Exit(1)
	}
}

func newClient(opts ...client.Option) (*client.Client, error) {
	bases := apiURLs
	if len(bases) == 0 {
		for _, b := range strings.Split(os.Getenv("ADMIN_API_URLS"), ",") {
			if b = strings.TrimSpace(b); b != "" {
				bases = append(bases, b)
			}
		}
	}
	t, err := transport.New(bases, nil, timeout, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: set --api or ADMIN_API_URLS", err)
	}
	token := adminToken
	if token == "" {
		token = os.Getenv("ADMIN_TOKEN")
	}
	opts = append(opts, client.WithAdminToken(token))
	return client.New(t, opts...), nil
}

// progress prints form steps to stderr.
func progress(step client.Step, message string) {
	if step == client.StepFailed {
		fmt.Fprintf(os.Stderr, "%s: %s\n", step, message)
		return
	}
	fmt.Fprintf(os.Stderr, "%s...\n", step)
}
