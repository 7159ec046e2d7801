package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile  string
	ProjectFile string
	NewProject  bool

	PUFile   string
	CUFile   string
	CMFile   string
	PUCMDir  string
	PUCMName string

	Rescale bool
	Metrics string
	Space   string

	PlotMap    string
	PlotGraph  string
	PlotMetric string
	Format     string

	HttpMode bool
	HttpPort int
	MqttMode bool
}

// editsProject reports whether the options create, load or modify a project
func (o AppOptions) editsProject() bool {
	return o.NewProject || o.ProjectFile != "" || o.PUFile != "" || o.CUFile != "" ||
		o.CMFile != "" || o.PUCMDir != "" || o.PUCMName != ""
}

func (o AppOptions) plots() bool {
	return o.PlotMap != "" || o.PlotGraph != "" || o.PlotMetric != ""
}

// Application is the set of actions the command line can trigger
type Application interface {
	ApplyOptions(opts AppOptions)
	RunProject() error
	RunRescale() error
	RunMetrics() error
	RunPlots() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses args and executes the requested steps in pipeline order:
// project, rescale, metrics, plots, then the long running service.
func run(args []string, out io.Writer, app Application) error {
	fs := flag.NewFlagSet("marxanconnect", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.ProjectFile, "project", "", "Project file (.json) to load and save")
	fs.BoolVar(&opts.NewProject, "new", false, "Start a new project instead of loading -project")
	fs.StringVar(&opts.PUFile, "pu", "", "Planning unit layer (.shp or .geojson)")
	fs.StringVar(&opts.CUFile, "cu", "", "Connectivity unit layer (.shp or .geojson)")
	fs.StringVar(&opts.CMFile, "cm", "", "Connectivity matrix CSV")
	fs.StringVar(&opts.PUCMDir, "pucm-dir", "", "Output directory for the planning unit connectivity matrix")
	fs.StringVar(&opts.PUCMName, "pucm-name", "", "Output filename for the planning unit connectivity matrix")
	fs.BoolVar(&opts.Rescale, "rescale", false, "Rescale the connectivity matrix onto the planning units")
	fs.StringVar(&opts.Metrics, "metrics", "", "Comma separated metrics to calculate (degree, betweenness, eigenvector, selfrecruit, boundary, all)")
	fs.StringVar(&opts.Space, "space", "pu", "Metric space: pu or cu")
	fs.StringVar(&opts.PlotMap, "plot-map", "", "Render the map to this file")
	fs.StringVar(&opts.PlotGraph, "plot-graph", "", "Render the connectivity graph to this file")
	fs.StringVar(&opts.PlotMetric, "plot-metric", "", "Render a bar chart of a metric key (e.g. vertex_degree_pu) to <key>.png")
	fs.StringVar(&opts.Format, "format", "png", "Plot format for -plot-map and -plot-graph: png or svg")
	fs.BoolVar(&opts.HttpMode, "http", false, "Run the HTTP service")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Publish project events and accept commands over MQTT")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.Format != "png" && opts.Format != "svg" {
		return fmt.Errorf("invalid -format %q (want png or svg)", opts.Format)
	}
	if opts.Space != "pu" && opts.Space != "cu" {
		return fmt.Errorf("invalid -space %q (want pu or cu)", opts.Space)
	}

	fmt.Fprintf(out, "marxanconnect version: %s\n", Version)
	app.ApplyOptions(opts)

	ran := false
	if opts.editsProject() {
		if err := app.RunProject(); err != nil {
			return err
		}
		ran = true
	}
	if opts.Rescale {
		if err := app.RunRescale(); err != nil {
			return err
		}
		ran = true
	}
	if opts.Metrics != "" {
		if err := app.RunMetrics(); err != nil {
			return err
		}
		ran = true
	}
	if opts.plots() {
		if err := app.RunPlots(); err != nil {
			return err
		}
		ran = true
	}
	if opts.HttpMode || opts.MqttMode {
		return app.RunService()
	}

	if !ran {
		fmt.Fprintln(out, "Nothing to do.")
		fmt.Fprintln(out, "Use -new -project FILE to start a project")
		fmt.Fprintln(out, "Use -pu/-cu/-cm to set input files")
		fmt.Fprintln(out, "Use -rescale to derive the planning unit connectivity matrix")
		fmt.Fprintln(out, "Use -metrics all to calculate connectivity metrics")
		fmt.Fprintln(out, "Use -plot-map, -plot-graph or -plot-metric to render plots")
		fmt.Fprintln(out, "Use -http and/or -mqtt to run as a service")
	}
	return nil
}
