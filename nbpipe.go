package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/phil-mansfield/nbpipe/lib/compress"
	"github.com/phil-mansfield/nbpipe/lib/config"
	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/format"
	"github.com/phil-mansfield/nbpipe/lib/pipeline"
	"github.com/phil-mansfield/nbpipe/lib/snapio"
	"github.com/phil-mansfield/nbpipe/lib/stages"
	"github.com/phil-mansfield/nbpipe/lib/thread"
)

func main() {
	flag.Usage = Usage
	flag.Parse()
	defer glog.Flush()

	args := flag.Args()
	if len(args) < 1 { Usage(); os.Exit(1) }

	mode, args := args[0], args[1:]
	switch mode {
	case "help":
		Usage()
	case "example_config":
		fmt.Printf("%s", config.Example)
	case "check":
		Check(ParseConfig(args))
		fmt.Println("No errors detected.")
	case "run":
		Run(ParseConfig(args))
	default:
		g_error.External("You attempted to run nbpipe in the mode '%s', but " +
			"the only valid modes are 'help', 'example_config', 'check', and " +
			"'run'.", mode)
	}
}

func Usage() {
	fmt.Fprintf(os.Stderr, `Expected usage:
./nbpipe [flags] help
./nbpipe [flags] example_config
./nbpipe [flags] check <ConfigName>
./nbpipe [flags] run <ConfigName>

- "example_config" prints an example config file.
- "check" reads the config file and checks it for errors.
- "run" loads every frame listed in the config file, applies the config
  file's stages to it, and writes the results.

Logging is controlled with the flags -v, -logtostderr, and -log_dir.
`)
}

// ParseConfig reads the config file named in args.
func ParseConfig(args []string) *config.Config {
	if len(args) != 1 {
		g_error.External("Expected exactly one config file name, but got " +
			"%d arguments.", len(args))
	}
	conf, err := config.Read(args[0])
	if err != nil { g_error.External("%s", err.Error()) }
	return conf
}

// Check exits with an error if the config has any problems.
func Check(conf *config.Config) {
	if err := conf.Check(); err != nil { g_error.External("%s", err.Error()) }
}

// Run runs nbpipe's "run" mode, which evaluates the pipeline at every frame.
func Run(conf *config.Config) {
	Check(conf)
	if err := thread.Set(conf.Threads); err != nil {
		g_error.External("%s", err.Error())
	}

	frames, err := conf.FrameList()
	if err != nil { g_error.External("%s", err.Error()) }
	src, err := snapio.NewFileSource(conf.Input, frames, Opener(conf))
	if err != nil { g_error.External("%s", err.Error()) }

	reg := prometheus.NewRegistry()
	metrics, err := pipeline.NewMetrics(reg)
	if err != nil { g_error.Internal("%s", err.Error()) }

	p, err := pipeline.New(src, pipeline.CacheSize(conf.CacheSize),
		pipeline.WithMetrics(metrics))
	if err != nil { g_error.External("%s", err.Error()) }
	for _, name := range conf.StageNames() {
		st, err := stages.New(name, conf.Cutoff, conf.Softening,
			conf.Neighbors)
		if err != nil { g_error.External("%s", err.Error()) }
		if err := p.Append(st); err != nil { g_error.Internal("%s", err) }
	}

	var out *format.FileFormatComponents
	var wr *compress.Writer
	if conf.Output != "" {
		out, err = format.NewFileFormatComponents(conf.Output)
		if err != nil { g_error.External("%s", err.Error()) }
		method, err := compress.MethodByName(conf.Compression)
		if err != nil { g_error.External("%s", err.Error()) }
		order, err := conf.Order()
		if err != nil { g_error.External("%s", err.Error()) }
		wr, err = compress.NewWriter(method, order)
		if err != nil { g_error.Internal("%s", err.Error()) }
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for t := range frames {
		res, err := p.Evaluate(ctx, pipeline.Time(t))
		if errors.Is(err, g_error.ErrCanceled) {
			glog.Warningf("Interrupted while processing frame %d.", frames[t])
			break
		} else if err != nil {
			g_error.External("Could not process frame %d: %s",
				frames[t], err.Error())
		}

		switch res.Status.Kind {
		case pipeline.Pending:
			glog.Warningf("Skipping frame %d: %s", frames[t],
				res.Status.Message)
			continue
		case pipeline.Warning:
			glog.Warningf("Frame %d: %s", frames[t], res.Status.Message)
		}
		glog.Infof("Processed frame %d: %d particles, %d bonds.", frames[t],
			res.Collection.ParticleCount(), res.Collection.BondCount())

		if wr != nil {
			fileName := out.Expand(frames[t])
			if err := wr.WriteFile(fileName, res.Collection); err != nil {
				g_error.External("Could not write %s: %s",
					fileName, err.Error())
			}
		}
		res.Release()
	}

	if conf.Metrics != "" {
		if err := prometheus.WriteToTextfile(conf.Metrics, reg); err != nil {
			g_error.External("Could not write metrics to %s: %s",
				conf.Metrics, err.Error())
		}
	}
}

// Opener returns the function used to open the config's input files.
func Opener(conf *config.Config) snapio.Opener {
	if conf.Format == "sheet" {
		origin, _ := conf.Origin()
		return func(fileName string) (snapio.File, error) {
			return snapio.NewSheet(fileName, origin, conf.SheetGridWidth)
		}
	}
	blocks, _ := conf.Blocks()
	order, _ := conf.Order()
	return snapio.Gadget2Opener(conf.Variant(), blocks, order)
}
