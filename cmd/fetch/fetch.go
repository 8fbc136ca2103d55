package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vantagesec/sentinel-go/internal/conf"
	"github.com/vantagesec/sentinel-go/internal/logging"
	"github.com/vantagesec/sentinel-go/internal/state"
	"github.com/vantagesec/sentinel-go/internal/transport"
)

// Command creates the command that fetches a single state snapshot.
func Command(settings *conf.Settings) *cobra.Command {
	var timeout time.Duration
	var showDiagnostics bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a single state snapshot",
		Long:  "Fetch the current state from the remote status endpoint, normalize it and print it as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(settings, timeout, showDiagnostics)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	cmd.Flags().BoolVar(&showDiagnostics, "diagnostics", false, "Print normalization diagnostics to stderr")

	return cmd
}

func runFetch(settings *conf.Settings, timeout time.Duration, showDiagnostics bool) error {
	pull := transport.NewPull(transport.PullConfig{
		URL:         settings.Sync.PollURL,
		Interval:    settings.Sync.PollInterval,
		BackoffBase: settings.Sync.BackoffBase,
		BackoffMax:  settings.Sync.BackoffMax,
	}, nil, logging.ForService("fetch"), nil)
	defer pull.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	raw, err := pull.FetchNow(ctx)
	if err != nil {
		return fmt.Errorf("fetching state from %s: %w", settings.Sync.PollURL, err)
	}

	normalizer := state.NewNormalizer(logging.ForService("fetch"), nil)
	snapshot, diagnostics := normalizer.NormalizeWithDiagnostics(raw)

	if showDiagnostics {
		for _, d := range diagnostics {
			fmt.Fprintf(os.Stderr, "substituted %s: %s\n", d.Field, d.Reason)
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snapshot)
}
