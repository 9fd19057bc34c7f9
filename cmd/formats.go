package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"video-relay-go/config"
	"video-relay-go/handlers"
	"video-relay-go/models"
	"video-relay-go/services"
)

// maxConcurrentResolves bounds parallel metadata lookups
const maxConcurrentResolves = 4

func init() {
	rootCmd.AddCommand(formatsCmd)
	formatsCmd.Flags().BoolP("json", "j", false, "Print results as JSON")
}

// formatsResult is one URL's outcome
type formatsResult struct {
	URL    string                  `json:"url"`
	Result *models.ResolveResponse `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

var errSomeFailed = errors.New("one or more URLs could not be resolved")

var formatsCmd = &cobra.Command{
	Use:   "formats <url>...",
	Short: "List the quality options of one or more videos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		resolver := services.NewResolver(services.NewYouTubeExtractor(settings, nil))

		results := make([]formatsResult, len(args))
		var g errgroup.Group
		g.SetLimit(maxConcurrentResolves)
		for i, rawURL := range args {
			g.Go(func() error {
				results[i] = resolveOne(cmd, resolver, rawURL)
				return nil
			})
		}
		_ = g.Wait()

		if lo.Must(cmd.Flags().GetBool("json")) {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return err
			}
		} else {
			printFormats(cmd.OutOrStdout(), results)
		}

		if lo.SomeBy(results, func(r formatsResult) bool { return r.Error != "" }) {
			return errSomeFailed
		}
		return nil
	},
}

func resolveOne(cmd *cobra.Command, resolver *services.Resolver, rawURL string) formatsResult {
	res, err := resolver.Resolve(cmd.Context(), rawURL).Get()
	if err != nil {
		return formatsResult{URL: rawURL, Error: err.Error()}
	}
	resp := handlers.NewResolveResponse(rawURL, res)
	return formatsResult{URL: rawURL, Result: &resp}
}

func printFormats(out io.Writer, results []formatsResult) {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if r.Error != "" {
			fmt.Fprintf(out, "%s\n  error: %s\n", r.URL, r.Error)
			continue
		}

		fmt.Fprintf(out, "%s (%s)\n", r.Result.Title, r.Result.Duration)
		if len(r.Result.Formats) == 0 {
			fmt.Fprintln(out, "  no formats with both video and audio")
			continue
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  QUALITY\tSELECTOR\tCONTAINER\tSIZE")
		for _, f := range r.Result.Formats {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", f.Quality, f.Selector, f.Container, f.FileSize)
		}
		w.Flush()
	}
}
