package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kwv/marxanconnect/connect"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *connect.Config
	Store      *connect.ProjectStore
	Dispatcher *connect.Dispatcher
	Jobs       *connect.JobRunner
	MQTTClient *connect.MQTTClient
	Publisher  *connect.Publisher

	Out  io.Writer
	opts AppOptions
}

// NewApp creates a new App instance
func NewApp() *App {
	a := &App{
		Store:      connect.NewProjectStore(nil, ""),
		Dispatcher: connect.NewDispatcher(),
		Out:        os.Stdout,
	}
	a.Jobs = connect.NewJobRunner(a.onJobFinished)
	return a
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.opts = opts
}

// config loads config.yaml once, falling back to defaults when it is absent
func (a *App) config() (*connect.Config, error) {
	if a.Config != nil {
		return a.Config, nil
	}
	cfg, err := connect.LoadConfigOrDefault(a.opts.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", a.opts.ConfigFile, err)
	}
	a.Config = cfg
	return cfg, nil
}

// RunProject creates or loads the project, applies file path overrides and
// saves the result.
func (a *App) RunProject() error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	switch {
	case a.opts.NewProject:
		a.Store.Replace(connect.NewProjectWithDefaults(cfg))
		a.Store.SetPath(a.opts.ProjectFile)
		fmt.Fprintln(a.Out, "Started new project")
	case a.opts.ProjectFile != "":
		a.Store.SetPath(a.opts.ProjectFile)
		if err := a.Store.Load(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("project %s does not exist (use -new to create it)", a.opts.ProjectFile)
			}
			return err
		}
		fmt.Fprintf(a.Out, "Loaded project %s\n", a.opts.ProjectFile)
	}

	overrides := map[string]string{
		connect.KeyPUFilepath:   a.opts.PUFile,
		connect.KeyCUFilepath:   a.opts.CUFile,
		connect.KeyCMFilepath:   a.opts.CMFile,
		connect.KeyPUCMFiledir:  a.opts.PUCMDir,
		connect.KeyPUCMFilename: a.opts.PUCMName,
	}
	a.Store.Update(func(p *connect.Project) {
		for key, value := range overrides {
			if value != "" {
				p.SetPath(key, value)
			}
		}
	})

	return a.save()
}

// save writes the project when it has a file, announcing the save
func (a *App) save() error {
	path := a.Store.Path()
	if path == "" {
		return nil
	}
	if err := a.Store.Save(); err != nil {
		return fmt.Errorf("saving project: %w", err)
	}
	fmt.Fprintf(a.Out, "Saved project %s\n", path)
	a.publish(func(p *connect.Publisher) error { return p.PublishSaved(path) })
	return nil
}

// RunRescale rescales the connectivity matrix as a background job and waits
// for it. Ctrl+C cancels the job.
func (a *App) RunRescale() error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := a.submitRescale(ctx, cfg)
	fmt.Fprintf(a.Out, "Rescaling connectivity matrix (job %s), press Ctrl+C to cancel\n", job.ID)

	<-job.Done()
	switch job.Status() {
	case connect.JobWarned:
		fmt.Fprintf(a.Out, "Warning: %s\n", job.Warning().Message)
	case connect.JobSucceeded:
		fmt.Fprintf(a.Out, "Wrote %s\n", a.Store.Snapshot().PUCMFilepath())
	default:
		return fmt.Errorf("rescale %s: %w", job.Status(), job.Err())
	}
	return nil
}

// submitRescale starts a rescale of the current project
func (a *App) submitRescale(ctx context.Context, cfg *connect.Config) *connect.Job {
	p := a.Store.Snapshot()
	return a.Jobs.Submit(ctx, "rescale", func(ctx context.Context) (*connect.Warning, error) {
		return connect.RescaleFiles(ctx, p, cfg.Rescale)
	})
}

func (a *App) onJobFinished(job *connect.Job) {
	a.publish(func(p *connect.Publisher) error { return p.PublishJob(job) })
}

// RunMetrics calculates the selected metrics into the project
func (a *App) RunMetrics() error {
	sel, err := connect.ParseSelection(a.opts.Metrics, connect.Space(a.opts.Space))
	if err != nil {
		return err
	}

	res, err := a.calculate(sel)
	if err != nil {
		return err
	}
	if res.Warning != nil {
		fmt.Fprintf(a.Out, "Warning: %s\n", res.Warning.Message)
		return nil
	}

	for _, key := range res.Updated {
		fmt.Fprintf(a.Out, "Calculated %s\n", key)
	}
	if res.Boundary {
		fmt.Fprintln(a.Out, "Calculated boundary table")
	}
	return a.save()
}

// calculate runs the dispatcher against the stored project
func (a *App) calculate(sel connect.Selection) (connect.Result, error) {
	res, err := a.Store.Calculate(a.Dispatcher, sel)
	if err != nil {
		return res, err
	}
	a.publish(func(p *connect.Publisher) error { return p.PublishResult(res) })
	return res, nil
}

// handleCommand runs a calculate command received over MQTT
func (a *App) handleCommand(sel connect.Selection) {
	res, err := a.calculate(sel)
	if err != nil {
		log.Printf("[MQTT] calculate command failed: %v", err)
		return
	}
	if res.Warning != nil {
		log.Printf("[MQTT] calculate command skipped: %s", res.Warning.Message)
		return
	}
	log.Printf("[MQTT] calculated %s", strings.Join(res.Updated, ", "))
}

// publish sends an event when MQTT is enabled
func (a *App) publish(fn func(p *connect.Publisher) error) {
	if a.Publisher == nil {
		return
	}
	if err := fn(a.Publisher); err != nil {
		log.Printf("[MQTT] publish failed: %v", err)
	}
}

// RunPlots renders the requested map, graph and metric chart files
func (a *App) RunPlots() error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	p := a.Store.Snapshot()

	if a.opts.PlotMap != "" {
		r, warning, err := connect.LoadMapRenderer(p, cfg)
		if err != nil {
			return err
		}
		if warning != nil {
			fmt.Fprintf(a.Out, "Warning: %s\n", warning.Message)
		} else if err := writePlot(a.opts.PlotMap, plotFormat(a.opts.PlotMap, a.opts.Format), r); err != nil {
			return err
		} else {
			fmt.Fprintf(a.Out, "Wrote map to %s\n", a.opts.PlotMap)
		}
	}

	if a.opts.PlotGraph != "" {
		g, warning, err := connect.LoadGraphRenderer(p, cfg)
		if err != nil {
			return err
		}
		if warning != nil {
			fmt.Fprintf(a.Out, "Warning: %s\n", warning.Message)
		} else if err := writePlot(a.opts.PlotGraph, plotFormat(a.opts.PlotGraph, a.opts.Format), g); err != nil {
			return err
		} else {
			fmt.Fprintf(a.Out, "Wrote graph to %s\n", a.opts.PlotGraph)
		}
	}

	if a.opts.PlotMetric != "" {
		path := a.opts.PlotMetric + ".png"
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		if err := connect.RenderProjectMetricChart(f, p, a.opts.PlotMetric); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", path, err)
		}
		fmt.Fprintf(a.Out, "Wrote chart to %s\n", path)
	}

	return nil
}

// plotRenderer is implemented by the map and graph renderers
type plotRenderer interface {
	RenderToSVG(w io.Writer) error
	RenderToPNG(w io.Writer) error
}

// plotFormat prefers the output file extension over the -format flag
func plotFormat(path, format string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".svg":
		return "svg"
	case ".png":
		return "png"
	}
	return format
}

func writePlot(path, format string, r plotRenderer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if format == "svg" {
		err = r.RenderToSVG(f)
	} else {
		err = r.RenderToPNG(f)
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RunService starts the HTTP and/or MQTT service and blocks until interrupted
func (a *App) RunService() error {
	fmt.Fprintln(a.Out, "Starting marxanconnect service...")

	cfg, err := a.config()
	if err != nil {
		return err
	}
	log.Printf("Loaded config from %s", a.opts.ConfigFile)

	if a.opts.MqttMode {
		client, err := connect.InitMQTT(cfg, a.handleCommand)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if client != nil {
			a.MQTTClient = client
			a.Publisher = connect.NewPublisher(client.GetClient(), client.Prefix())
		}
	}

	// Jobs started over HTTP outlive their request but not the service
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.opts.HttpMode {
		httpServer := newHTTPServer(ctx, a.Store, a.Jobs, a.Dispatcher, cfg, a.Publisher)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.opts.HttpPort)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")

	if a.MQTTClient != nil {
		fmt.Fprintln(a.Out, "\nMQTT:")
		fmt.Fprintf(a.Out, "  Commands: %s\n", connect.CommandTopic(a.MQTTClient.Prefix()))
		fmt.Fprintf(a.Out, "  Events:   %s\n", connect.EventsTopic(a.MQTTClient.Prefix()))
	}

	if a.opts.HttpMode {
		fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.opts.HttpPort)
		fmt.Fprintln(a.Out, "  GET  /health             - Health check")
		fmt.Fprintln(a.Out, "  GET  /project            - Current project")
		fmt.Fprintln(a.Out, "  PUT  /project            - Replace the project")
		fmt.Fprintln(a.Out, "  POST /project/save       - Save the project file")
		fmt.Fprintln(a.Out, "  POST /metrics            - Calculate metrics")
		fmt.Fprintln(a.Out, "  POST /rescale            - Start a rescale job")
		fmt.Fprintln(a.Out, "  GET  /jobs/{id}          - Job status")
		fmt.Fprintln(a.Out, "  GET  /map.png, /map.svg  - Map plot")
		fmt.Fprintln(a.Out, "  GET  /graph.png, /graph.svg - Connectivity graph")
		fmt.Fprintln(a.Out, "  GET  /chart/{metric}.png - Metric bar chart")
	}

	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintln(a.Out, "\nShutting down service...")
	cancel()
	a.Jobs.Wait()
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.Out, "Service stopped")
	return nil
}
