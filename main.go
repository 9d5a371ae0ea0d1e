package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile  string
	ScenePath   string
	Inspect     bool
	Source      string
	OutputFile  string
	ReportFile  string
	CoveragePNG string
	PlanSVG     string
	PlanPNG     string
	GeoJSONFile string
	HistoryPath string
	ReportCache string
	Verbose     bool

	// Threshold overrides; negative keeps the configured value
	ErrorTol          float64
	CoverageThresh    float64
	OutlierStdevBound float64

	// NoReprojTest disables the reprojection error test, whatever ErrorTol says
	NoReprojTest bool

	HTTPPort int
	MQTTMode bool
	HTTPMode bool
}

// Runner is implemented by App; tests substitute a recorder
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunInspect() error
	RunClean() error
	RunFetch() error
	RunService() error
}

// run parses args and dispatches to the selected mode
func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("sfmclean", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.ScenePath, "scene", "", "Scene JSON file to clean")
	fs.BoolVar(&opts.Inspect, "inspect", false, "Print coverage and connectivity of --scene without cleaning")
	fs.StringVar(&opts.Source, "source", "", "Fetch and clean one scene from the apiUrl of this configured source")
	fs.StringVar(&opts.OutputFile, "output", "", "Write the cleaned scene JSON here")
	fs.StringVar(&opts.ReportFile, "report", "", "Write the clean report JSON here")
	fs.StringVar(&opts.CoveragePNG, "coverage-png", "", "Write the per-frame coverage sheet PNG here")
	fs.StringVar(&opts.PlanSVG, "plan-svg", "", "Write the plan view SVG here")
	fs.StringVar(&opts.PlanPNG, "plan-png", "", "Write the plan view PNG here")
	fs.StringVar(&opts.GeoJSONFile, "geojson", "", "Write the plan view GeoJSON here")
	fs.StringVar(&opts.HistoryPath, "history", "", "SQLite database for clean run history (default: history.path from config)")
	fs.StringVar(&opts.ReportCache, "report-cache", "", "JSON file caching the latest report per scene in service mode")
	fs.BoolVar(&opts.Verbose, "v", false, "Log every cleaning iteration")
	fs.Float64Var(&opts.ErrorTol, "error-tol", -1, "Reprojection error tolerance in pixels (overrides config)")
	fs.BoolVar(&opts.NoReprojTest, "no-reproj-test", false, "Disable the reprojection error test (error tolerance < 0)")
	fs.Float64Var(&opts.CoverageThresh, "coverage-thresh", -1, "Minimum image coverage fraction, 0 disables (overrides config)")
	fs.Float64Var(&opts.OutlierStdevBound, "outlier-stdev", -1, "Statistical landmark filter bound, 0 disables (overrides config)")
	fs.IntVar(&opts.HTTPPort, "http-port", 8080, "HTTP server port")
	fs.BoolVar(&opts.MQTTMode, "mqtt", false, "Run MQTT service mode: clean every scene received on the source topics")
	fs.BoolVar(&opts.HTTPMode, "http", false, "Enable HTTP server for reports and renders")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "sfmclean version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.MQTTMode || opts.HTTPMode:
		return app.RunService()
	case opts.Source != "":
		return app.RunFetch()
	case opts.ScenePath != "" && opts.Inspect:
		return app.RunInspect()
	case opts.ScenePath != "":
		return app.RunClean()
	}

	fmt.Fprintln(out, "Use --scene=FILE to clean a scene once")
	fmt.Fprintln(out, "Use --scene=FILE --inspect to print coverage and connectivity")
	fmt.Fprintln(out, "Use --source=ID to fetch and clean a scene from a configured apiUrl")
	fmt.Fprintln(out, "Use --mqtt to clean scenes as they arrive over MQTT")
	fmt.Fprintln(out, "Use --http to serve reports and renders")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - clean thresholds, MQTT settings and scene sources")
	return nil
}

func main() {
	err := run(os.Args[1:], os.Stdout, NewApp())
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("sfmclean: %v", err)
	}
}
