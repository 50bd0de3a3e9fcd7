package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"urbanlens/internal/storage"
	"urbanlens/models"
	"urbanlens/pkg/graceful"
)

var submitFlags struct {
	file     string
	provider string
	radius   int
}

var submitCmd = &cobra.Command{
	Use:   "submit [address...]",
	Short: "Queue addresses for the worker by writing request objects to storage",
	Long: "Each address becomes a JSON object under requests/ in the bucket. The bucket's " +
		"notifications carry them to the worker through Kafka.",
	RunE: runSubmit,
}

func init() {
	f := submitCmd.Flags()
	f.StringVarP(&submitFlags.file, "file", "f", "", "read addresses from a file, one per line (- for stdin)")
	f.StringVar(&submitFlags.provider, "provider", "", "street imagery provider for these requests")
	f.IntVar(&submitFlags.radius, "radius", 0, "imagery search radius in meters")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	addresses := args
	if submitFlags.file != "" {
		more, err := addressesFrom(cmd, submitFlags.file)
		if err != nil {
			return err
		}
		addresses = append(addresses, more...)
	}
	if len(addresses) == 0 {
		return eris.New("submit: no addresses given")
	}
	if err := cfg.Validate("submit"); err != nil {
		return err
	}

	ctx, cancel := graceful.Context(cmd.Context())
	defer cancel()

	s3, err := storage.NewS3Service(cfg.Storage)
	if err != nil {
		return err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return err
	}

	start := time.Now()
	requests := make(chan models.LookupRequest)
	go func() {
		defer close(requests)
		for _, address := range addresses {
			req := models.LookupRequest{
				Address:  address,
				Provider: models.Provider(submitFlags.provider),
				RadiusM:  submitFlags.radius,
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	stored := s3.StoreRequestsFromChannel(ctx, requests)
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %d of %d requests in %s\n", stored, len(addresses), time.Since(start).Round(time.Millisecond))
	if stored < len(addresses) {
		return eris.Errorf("submit: %d requests were not queued", len(addresses)-stored)
	}
	return nil
}

func addressesFrom(cmd *cobra.Command, path string) ([]string, error) {
	if path == "-" {
		return readAddresses(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "submit: open %s", path)
	}
	defer f.Close()
	return readAddresses(f)
}

// readAddresses returns the non-blank lines of r. Lines starting with # are
// comments.
func readAddresses(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "submit: read addresses")
	}
	return out, nil
}
