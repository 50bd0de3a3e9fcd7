package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"urbanlens/internal/app"
	"urbanlens/internal/keys"
	"urbanlens/internal/lookup"
	"urbanlens/internal/render"
	"urbanlens/internal/report"
	"urbanlens/models"
	"urbanlens/pkg/graceful"
)

var lookupFlags struct {
	json     bool
	html     string
	provider string
	radius   int
	pano     bool
	lat      float64
	lon      float64
	archive  bool
	width    int
}

var lookupCmd = &cobra.Command{
	Use:   "lookup [address...]",
	Short: "Look up one or more addresses and print their site summary",
	Example: `  urbanlens lookup "Tour Eiffel, Paris"
  urbanlens lookup --lat 48.8584 --lon 2.2945 --provider google
  urbanlens lookup "1 rue de Rivoli, Paris" --html rivoli.html`,
	RunE: runLookup,
}

func init() {
	f := lookupCmd.Flags()
	f.BoolVar(&lookupFlags.json, "json", false, "print the report as JSON")
	f.StringVar(&lookupFlags.html, "html", "", "write an HTML report page to this file")
	f.StringVar(&lookupFlags.provider, "provider", "", "street imagery provider: auto, mapillary or google (default from config)")
	f.IntVar(&lookupFlags.radius, "radius", 0, "imagery search radius in meters (default from config)")
	f.BoolVar(&lookupFlags.pano, "pano", true, "prefer 360° panoramas")
	f.Float64Var(&lookupFlags.lat, "lat", 0, "latitude, instead of an address")
	f.Float64Var(&lookupFlags.lon, "lon", 0, "longitude, instead of an address")
	f.BoolVar(&lookupFlags.archive, "archive", false, "store the report in object storage")
	f.IntVar(&lookupFlags.width, "width", 100, "terminal word wrap width")
	lookupCmd.MarkFlagsRequiredTogether("lat", "lon")
	lookupCmd.MarkFlagsMutuallyExclusive("json", "html")
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	useCoords := cmd.Flags().Changed("lat")
	if !useCoords && len(args) == 0 {
		return eris.New("lookup: give an address or --lat and --lon")
	}
	if err := cfg.Validate("lookup"); err != nil {
		return err
	}

	ctx, cancel := graceful.Context(cmd.Context())
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	req := models.LookupRequest{Provider: models.Provider(lookupFlags.provider), RadiusM: lookupFlags.radius}
	if cmd.Flags().Changed("pano") {
		req.PreferPano = &lookupFlags.pano
	}

	var (
		reports []*report.Report
		failed  error
	)
	if useCoords {
		r, err := a.Lookup.LookupAt(ctx, lookupFlags.lat, lookupFlags.lon, req)
		if err != nil {
			return err
		}
		reports = append(reports, r)
	} else {
		reqs := make([]models.LookupRequest, len(args))
		for i, address := range args {
			reqs[i] = req
			reqs[i].Address = address
		}
		for _, o := range a.Lookup.LookupMany(ctx, reqs, cfg.Batch.Concurrency) {
			if o.Report == nil {
				return eris.Wrapf(o.Err, "lookup: %q", o.Request.Address)
			}
			if errors.Is(o.Err, lookup.ErrGeocoderUnavailable) {
				failed = o.Err
			}
			reports = append(reports, o.Report)
		}
	}

	out := cmd.OutOrStdout()
	for _, r := range reports {
		if err := writeReport(out, r, len(reports) > 1); err != nil {
			return err
		}
		if lookupFlags.archive {
			archiveReport(ctx, cmd.ErrOrStderr(), a, r)
		}
	}
	return failed
}

func writeReport(out io.Writer, r *report.Report, many bool) error {
	switch {
	case lookupFlags.json:
		return render.JSON(out, r)
	case lookupFlags.html != "":
		path := htmlPath(lookupFlags.html, r.Query, many)
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "lookup: create %s", path)
		}
		defer f.Close()
		if err := render.HTML(f, r); err != nil {
			return err
		}
		fmt.Fprintf(out, "Report written to %s\n", path)
		return nil
	default:
		text, err := render.Terminal(r, lookupFlags.width)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, text)
		return err
	}
}

// htmlPath inserts the address slug before the extension when several
// reports share one --html flag.
func htmlPath(path, address string, many bool) string {
	if !many {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + keys.Slug(address) + ext
}

func archiveReport(ctx context.Context, out io.Writer, a *app.App, r *report.Report) {
	if a.Storage == nil {
		zap.L().Warn("--archive ignored: object storage is not configured")
		return
	}
	key, err := a.Lookup.Archive(ctx, r)
	if err != nil {
		zap.L().Error("failed to archive report", zap.String("address", r.Query), zap.Error(err))
		return
	}
	fmt.Fprintf(out, "Archived %s to %s/%s\n", r.Query, a.Storage.Bucket(), key)
}
