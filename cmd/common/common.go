package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ScottSallinen/dgsync/comm"
	"github.com/ScottSallinen/dgsync/graph"
	"github.com/ScottSallinen/dgsync/partition"
	"github.com/ScottSallinen/dgsync/stats"
	"github.com/ScottSallinen/dgsync/utils"
)

// Declares an application's fields on a host's graph, once. Called on every host.
type App func(ctx context.Context, g *graph.DistGraph) (Run, error)

// One host's part of a run; fields are reset by the run itself.
type Run func(ctx context.Context, run uint32) error

func ExtractGraphName(graphFilename string) (graphName string) {
	gNameMainT := strings.Split(graphFilename, "/")
	gNameMain := gNameMainT[len(gNameMainT)-1]
	gNameMainTD := strings.Split(gNameMain, ".")
	if len(gNameMainTD) > 1 {
		return gNameMainTD[len(gNameMainTD)-2]
	} else {
		return gNameMainTD[0]
	}
}

// Parses the shared flags and launches app; exits non-zero on failure. Declare your own flags
// before you call this function.
func Main(app App, adjust func(*graph.Options)) {
	opts := graph.FlagsToOptions()
	if adjust != nil {
		adjust(&opts)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := Launch(ctx, opts, app); err != nil {
		log.Error().Err(err).Msg("Run failed")
		stop()
		os.Exit(1)
	}
}

// Loads the graph and runs app on every host: either on opts.NumHosts hosts inside this
// process, or as host opts.HostID of a TCP mesh when peers are given.
func Launch(ctx context.Context, opts graph.Options, app App) error {
	opts.Defaults()
	policy, err := partition.ParsePolicy(opts.Policy)
	if err != nil {
		return err
	}
	el, err := partition.LoadEdgeList(opts.Name, partition.LoadOptionsFrom(opts))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if opts.MetricsAddr != "" {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		serveMetrics(opts.MetricsAddr, reg)
	}

	if len(opts.Peers) == 0 {
		m0 := time.Now()
		parts := partition.Build(el, opts.NumHosts, policy)
		log.Info().Msg("Partitioned " + ExtractGraphName(opts.Name) + " (" + policy.String() + ") over " + utils.V(opts.NumHosts) + " hosts in (ms) " +
			utils.V(time.Since(m0).Milliseconds()))
		return RunLocal(ctx, parts, opts, reg, app)
	}

	compression, err := comm.ParseCompression(opts.Compression)
	if err != nil {
		return err
	}
	ep, err := comm.DialMesh(ctx, comm.TCPConfig{
		ID:          opts.HostID,
		Addrs:       opts.Peers,
		Compression: compression,
		Registerer:  reg,
	})
	if err != nil {
		return err
	}
	part := partition.BuildHost(el, opts.NumHosts, opts.HostID, policy)
	if err = runHost(ctx, ep, part, opts, app); err != nil {
		// Peers waiting on this host see its connections drop.
		return errors.Join(err, ep.Abort(err))
	}
	return ep.Close()
}

// Runs every partition as one host of an in-process cluster. A failing host aborts the
// endpoints of all hosts, so collectives still waiting on it fail rather than block.
func RunLocal(ctx context.Context, parts []*graph.Partition, opts graph.Options, reg prometheus.Registerer, app App) error {
	eps := comm.NewLocalCluster(uint32(len(parts)), reg)
	opts.NumHosts = uint32(len(parts))
	var first error
	var abort sync.Once
	g, gctx := errgroup.WithContext(ctx)
	for h, part := range parts {
		g.Go(func() error {
			err := runHost(gctx, eps[h], part, opts, app)
			if err != nil {
				abort.Do(func() {
					first = err
					for _, ep := range eps {
						ep.Abort(err)
					}
				})
			}
			return err
		})
	}
	err := g.Wait()
	if first != nil {
		// Other hosts fail only because of the abort.
		err = first
	}
	for _, ep := range eps {
		err = errors.Join(err, ep.Close())
	}
	return err
}

// Fatal errors inside the substrate panic; they end this host's run with an error instead,
// which in an in-process cluster cancels the other hosts.
func runHost(ctx context.Context, ep *comm.Endpoint, part *graph.Partition, opts graph.Options, app App) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host %d: %v", ep.ID(), r)
		}
	}()

	g := graph.New(ctx, ep, part, opts)
	g.Stats.Add(0, "Graph", "RunID", stats.Str(g.RunID.String()))
	exec, err := app(ctx, g)
	if err != nil {
		return fmt.Errorf("host %d: %w", ep.ID(), err)
	}
	for run := uint32(0); run < g.Options.Runs; run++ {
		m0 := time.Now()
		if err := exec(ctx, run); err != nil {
			return fmt.Errorf("host %d run %d: %w", ep.ID(), run, err)
		}
		g.Stats.Add(0, "Run", "Time", stats.Int(time.Since(m0).Milliseconds()))
		g.Barrier(ctx)
		if ep.ID() == 0 {
			log.Info().Msg("Run " + utils.V(run) + " done in (ms) " + utils.V(time.Since(m0).Milliseconds()))
		}
	}
	if g.Options.DebugLevel > 0 {
		utils.MemoryStats(&g.Log)
	}
	return writeStats(g, g.Options)
}

// Host 0 prints a summary; with a stats file every host writes its full table. JSON logging
// streams every record instead.
func writeStats(g *graph.DistGraph, opts graph.Options) error {
	if opts.LogJSON {
		g.Stats.PrintRecords(os.Stdout)
		return nil
	}
	if opts.StatsFile != "" {
		file := utils.CreateFile(opts.StatsFile + "." + utils.V(g.HostID()))
		defer file.Close()
		return g.Stats.PrintTable(file)
	}
	if g.HostID() != 0 {
		return nil
	}
	return g.Stats.PrintSummary(os.Stdout)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	go func() {
		log.Info().Msg("Metrics starting on " + addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Msg("Metrics failed to start.")
		}
	}()
}
