package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kwv/sfmclean/sfm"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *sfm.Config
	StateTracker *sfm.StateTracker
	MQTTClient   *sfm.MQTTClient
	Publisher    *sfm.Publisher
	History      *sfm.HistoryStore

	// CLI flags (effectively dependencies)
	Options AppOptions

	params sfm.CleanParams
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: sfm.NewStateTracker(),
		params:       sfm.DefaultCleanParams(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.Options = opts
}

// Params returns the thresholds in effect
func (a *App) Params() sfm.CleanParams {
	return a.params
}

// resolveParams picks the clean thresholds: config file if present, then
// flag overrides. A missing config file is not an error outside service mode.
func (a *App) resolveParams() error {
	params := sfm.DefaultCleanParams()
	if a.Config != nil {
		params = a.Config.Clean
	} else if a.Options.ConfigFile != "" {
		p, err := sfm.LoadCleanParams(a.Options.ConfigFile)
		switch {
		case err == nil:
			params = p
			log.Printf("Loaded clean thresholds from %s", a.Options.ConfigFile)
		case errors.Is(err, os.ErrNotExist):
			log.Printf("No config at %s, using default thresholds", a.Options.ConfigFile)
		default:
			return err
		}
	}

	if a.Options.ErrorTol >= 0 {
		params.ErrorTol = a.Options.ErrorTol
	}
	if a.Options.NoReprojTest {
		params.ErrorTol = -1
	}
	if a.Options.CoverageThresh >= 0 {
		params.CoverageThresh = a.Options.CoverageThresh
	}
	if a.Options.OutlierStdevBound >= 0 {
		params.OutlierStdevBound = a.Options.OutlierStdevBound
	}
	if err := params.Validate(); err != nil {
		return err
	}
	a.params = params
	return nil
}

func (a *App) logger(sceneID string) sfm.Logger {
	if !a.Options.Verbose {
		return nil
	}
	return sfm.NewLogger(fmt.Sprintf("[CLEAN %s] ", sceneID), os.Stderr)
}

// openHistory opens the history store named by the flag or the config
func (a *App) openHistory() error {
	path := a.Options.HistoryPath
	if path == "" && a.Config != nil {
		path = a.Config.History.Path
	}
	if path == "" {
		return nil
	}
	store, err := sfm.OpenHistoryStore(path)
	if err != nil {
		return err
	}
	a.History = store
	log.Printf("Recording clean runs to %s", path)
	return nil
}

// ProcessScene cleans s in place, records the result in the state tracker
// and history, and publishes the report when MQTT is up.
func (a *App) ProcessScene(s *sfm.Scene) *sfm.CleanReport {
	before := make(sfm.CameraMap, len(s.Cameras))
	for fid, cam := range s.Cameras {
		before[fid] = cam
	}

	report := sfm.CleanScene(s, a.params, a.logger(s.ID))
	removed := sfm.RemovedCameras(before, report.Result.RemovedCameras)
	a.StateTracker.UpdateScene(s, removed, report)

	res := report.Result
	log.Printf("%s: %d iteration(s), removed %d camera(s) and %d landmark(s), %d/%d cameras and %d/%d landmarks left (%.1fms)",
		s.ID, res.Iterations, len(res.RemovedCameras), len(res.RemovedLandmarks),
		report.RemainingCameras, report.CamerasBefore,
		report.RemainingLandmarks, report.LandmarksBefore, report.Duration)

	if a.History != nil {
		if err := a.History.InsertReport(report); err != nil {
			log.Printf("Error recording clean run for %s: %v", s.ID, err)
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.PublishReport(report); err != nil {
			log.Printf("Error publishing report for %s: %v", s.ID, err)
		}
	}
	return report
}

// RunInspect prints coverage and connectivity of a scene without cleaning
func (a *App) RunInspect() error {
	s, err := sfm.ParseSceneFile(a.Options.ScenePath)
	if err != nil {
		return err
	}
	if err := a.resolveParams(); err != nil {
		return err
	}

	fmt.Printf("=== %s ===\n", s.ID)
	fmt.Printf("File: %s\n", a.Options.ScenePath)
	fmt.Printf("Cameras: %d present, %d absent\n", s.CameraCount(), len(s.Cameras)-s.CameraCount())
	fmt.Printf("Landmarks: %d, Tracks: %d\n", len(s.Landmarks), s.Tracks.Len())

	fmt.Println("\nCoverage:")
	for _, fc := range sfm.ImageCoverages(s.Tracks, s.Landmarks, s.Cameras) {
		note := ""
		if fc.Coverage < a.params.CoverageThresh {
			note = "  (below threshold)"
		}
		fmt.Printf("  frame %-6d %5.1f%%%s\n", fc.Frame, 100*fc.Coverage, note)
	}

	pv := sfm.NewPlanView(s, nil)
	fmt.Printf("\nComponents: %d\n", len(pv.Components))
	for i, frames := range pv.Components {
		fmt.Printf("  #%d: %d camera(s) %v\n", i, len(frames), frames)
	}
	return nil
}

// RunClean cleans one scene file and writes the requested outputs
func (a *App) RunClean() error {
	s, err := sfm.ParseSceneFile(a.Options.ScenePath)
	if err != nil {
		return err
	}
	if err := a.resolveParams(); err != nil {
		return err
	}
	if err := a.openHistory(); err != nil {
		return err
	}
	if a.History != nil {
		defer a.History.Close()
	}

	a.ProcessScene(s)
	return a.writeOutputs(s.ID)
}

// RunFetch fetches one scene from a configured source's apiUrl and cleans it
func (a *App) RunFetch() error {
	config, err := sfm.LoadConfig(a.Options.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.Config = config

	src := config.GetSourceByID(a.Options.Source)
	if src == nil {
		return fmt.Errorf("source %q not found in %s", a.Options.Source, a.Options.ConfigFile)
	}
	if src.APIURL == nil || *src.APIURL == "" {
		return fmt.Errorf("source %q has no apiUrl", src.ID)
	}
	if err := a.resolveParams(); err != nil {
		return err
	}
	if err := a.openHistory(); err != nil {
		return err
	}
	if a.History != nil {
		defer a.History.Close()
	}

	s, err := a.fetchSource(context.Background(), src)
	if err != nil {
		return err
	}
	a.ProcessScene(s)
	return a.writeOutputs(s.ID)
}

func (a *App) fetchSource(ctx context.Context, src *sfm.SourceConfig) (*sfm.Scene, error) {
	s, err := sfm.FetchSceneFromAPIWithContext(ctx, *src.APIURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.ID, err)
	}
	if s.ID == "" {
		s.ID = src.ID
	}
	return s, nil
}

// writeOutputs writes every output file named on the command line
func (a *App) writeOutputs(sceneID string) error {
	state, ok := a.StateTracker.GetScene(sceneID)
	if !ok {
		return fmt.Errorf("scene %s was not cleaned", sceneID)
	}
	o := a.Options

	if o.OutputFile != "" {
		data, err := sfm.MarshalScene(state.Scene)
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.OutputFile, data, 0644); err != nil {
			return fmt.Errorf("write cleaned scene: %w", err)
		}
		fmt.Printf("Saved cleaned scene to %s\n", o.OutputFile)
	}

	if o.ReportFile != "" {
		data, err := json.MarshalIndent(state.Report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		if err := os.WriteFile(o.ReportFile, data, 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("Saved report to %s\n", o.ReportFile)
	}

	if o.CoveragePNG != "" {
		if err := sfm.NewCoverageSheet(state.Scene, a.params.CoverageThresh).SavePNG(o.CoveragePNG); err != nil {
			return err
		}
		fmt.Printf("Saved coverage sheet to %s\n", o.CoveragePNG)
	}

	pv := sfm.NewPlanView(state.Scene, state.Removed)
	renderer := sfm.NewPlanRenderer(pv)

	if o.PlanSVG != "" {
		if err := writeFileWith(o.PlanSVG, renderer.RenderToSVG); err != nil {
			return fmt.Errorf("write plan svg: %w", err)
		}
		fmt.Printf("Saved plan view to %s\n", o.PlanSVG)
	}
	if o.PlanPNG != "" {
		if err := writeFileWith(o.PlanPNG, renderer.RenderToPNG); err != nil {
			return fmt.Errorf("write plan png: %w", err)
		}
		fmt.Printf("Saved plan view to %s\n", o.PlanPNG)
	}

	if o.GeoJSONFile != "" {
		data, err := sfm.MarshalSceneGeoJSON(pv, 0)
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.GeoJSONFile, data, 0644); err != nil {
			return fmt.Errorf("write geojson: %w", err)
		}
		fmt.Printf("Saved GeoJSON to %s\n", o.GeoJSONFile)
	}
	return nil
}

// writeFileWith creates path and streams render into it
func writeFileWith(path string, render func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// handleScene is the MQTT scene callback
func (a *App) handleScene(sourceID string, s *sfm.Scene, err error) {
	if err != nil {
		log.Printf("Error receiving scene from %s: %v", sourceID, err)
		return
	}
	log.Printf("[MQTT] %s: received scene %s (%d cameras, %d landmarks, %d tracks)",
		sourceID, s.ID, s.CameraCount(), len(s.Landmarks), s.Tracks.Len())
	a.ProcessScene(s)
}

// fetchAPISources cleans one scene from every source that has an apiUrl and
// no topic
func (a *App) fetchAPISources(ctx context.Context) {
	for i := range a.Config.Sources {
		src := &a.Config.Sources[i]
		if src.Topic != "" || src.APIURL == nil || *src.APIURL == "" {
			continue
		}
		s, err := a.fetchSource(ctx, src)
		if err != nil {
			log.Printf("Error fetching scene for %s: %v", src.ID, err)
			continue
		}
		a.ProcessScene(s)
	}
}

// RunService cleans scenes from MQTT and API sources and serves reports
func (a *App) RunService() error {
	fmt.Println("Starting sfmclean service...")

	config, err := sfm.LoadConfig(a.Options.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w (looked at %s)", err, a.Options.ConfigFile)
	}
	a.Config = config
	log.Printf("Loaded config from %s", a.Options.ConfigFile)

	if err := a.resolveParams(); err != nil {
		return err
	}
	if err := a.openHistory(); err != nil {
		return err
	}
	if a.History != nil {
		defer a.History.Close()
	}
	if a.Options.ReportCache != "" {
		a.StateTracker = sfm.NewStateTrackerWithCache(a.Options.ReportCache)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.Options.MQTTMode {
		client, err := sfm.InitMQTT(config, a.handleScene)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if client == nil {
			return fmt.Errorf("MQTT broker not configured in %s", a.Options.ConfigFile)
		}
		a.MQTTClient = client
		a.Publisher = sfm.NewPublisher(client.GetClient(), config.MQTT.PublishPrefix)
		fmt.Println("MQTT report publisher initialized")
	}

	var srv *http.Server
	if a.Options.HTTPMode {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.Options.HTTPPort),
			Handler:           newHTTPServer(a.StateTracker, a.History, a.params.CoverageThresh),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			fmt.Printf("HTTP server starting on %s\n", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	go a.fetchAPISources(ctx)

	fmt.Println("\nService Running")
	fmt.Println("===============")
	if a.Options.MQTTMode {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topics:")
		for _, sc := range config.Sources {
			if sc.Topic != "" {
				fmt.Printf("    - %s (%s)\n", sc.Topic, sc.ID)
			}
		}
		fmt.Printf("  Publishing to: %s/{sceneID}/report\n", a.Publisher.Prefix())
		fmt.Printf("  Combined reports: %s/reports\n", a.Publisher.Prefix())
	}
	if a.Options.HTTPMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.Options.HTTPPort)
		fmt.Println("  GET /health                    - Health check")
		fmt.Println("  GET /reports                   - Latest report per scene")
		fmt.Println("  GET /reports/{id}              - Latest report of one scene")
		fmt.Println("  GET /scenes/{id}/coverage.png  - Per-frame coverage sheet")
		fmt.Println("  GET /scenes/{id}/plan.svg      - Plan view (also plan.png)")
		fmt.Println("  GET /scenes/{id}/plan.geojson  - Plan view as GeoJSON")
		fmt.Println("  GET /history?scene={id}        - Recorded clean runs")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down service...")
	cancel()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
	return nil
}
