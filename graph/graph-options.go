package graph

import (
	"flag"
	"os"
	"runtime"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/dgsync/utils"
)

type Options struct {
	Name          string   // Edge list file of the input graph.
	ClusterFile   string   // HCL file describing the cluster; overrides flags it sets.
	NumThreads    uint32   // Worker threads per host.
	NumHosts      uint32   // Hosts to run in this process, when no peers are given.
	HostID        uint32   // This host's id, when running over TCP.
	Peers         []string // Listen address of every host, by id. Non-empty means TCP.
	Policy        string   // Partitioning policy: oec, iec or cvc.
	Compression   string   // Transport compression: none, zstd or lz4.
	MaxIterations uint32   // Round limit for converging loops. 0 is unbounded.
	Runs          uint32   // Times to repeat the algorithm.
	DebugLevel    uint8    // 0 for info, 1 for debug, 2 for trace.
	Undirected    bool     // Add the reverse of every edge.
	Transpose     bool     // Swap the source and destination of every edge.
	Weighted      bool     // The third column of the edge list is a weight.
	NoBitsets     bool     // Synchronize every vertex of a field, not only marked ones.
	NoFilters     bool     // Ignore location qualifiers; synchronize all mirrors.
	OnDemand      bool     // Synchronize fields lazily, when read.
	NoSteal       bool     // Workers do not steal chunks from each other.
	Verify        bool     // Write each host's master results to <OutputPrefix>.<host>.
	OutputPrefix  string
	MetricsAddr   string // If set, serve prometheus metrics on this address.
	StatsFile     string // If set, write the statistics table here instead of stdout.
	ColourOutput  bool
	LogJSON       bool
}

// Fills unset options with their defaults.
func (o *Options) Defaults() {
	if o.NumThreads == 0 {
		o.NumThreads = uint32(runtime.NumCPU())
	}
	if o.NumHosts == 0 {
		o.NumHosts = 1
	}
	if len(o.Peers) > 0 {
		o.NumHosts = uint32(len(o.Peers))
	}
	if o.Runs == 0 {
		o.Runs = 1
	}
	if o.Policy == "" {
		o.Policy = "oec"
	}
	if o.Compression == "" {
		o.Compression = "none"
	}
	if o.OutputPrefix == "" {
		o.OutputPrefix = "results"
	}
}

func (o *Options) validate() {
	switch o.Policy {
	case "oec", "iec", "cvc":
	default:
		log.Panic().Msg("Unknown partitioning policy: " + o.Policy)
	}
	switch o.Compression {
	case "none", "zstd", "lz4":
	default:
		log.Panic().Msg("Unknown compression: " + o.Compression)
	}
	if len(o.Peers) > 0 && o.HostID >= uint32(len(o.Peers)) {
		log.Panic().Msg("Host id " + utils.V(o.HostID) + " is not among the " + utils.V(len(o.Peers)) + " peers")
	}
	if o.NumThreads > uint32(runtime.NumCPU()) {
		log.Warn().Msg("Thread count is greater than CPU count?")
	}
}

// Declare your own flags before you call this function.
func FlagsToOptions() (options Options) {
	graphPtr := flag.String("g", "", "Graph file: an edge list, one \"src dst [weight]\" per line. Lines starting with # are skipped.")
	clusterPtr := flag.String("cluster", "", "HCL cluster file. Settings in it override the matching flags.")
	threadPtr := flag.Int("t", runtime.NumCPU(), "Worker threads per host.")
	hostsPtr := flag.Int("hosts", 1, "Number of hosts to run inside this process, when no peers are given.")
	hostPtr := flag.Int("host", 0, "This host's id, when running over TCP.")
	policyPtr := flag.String("policy", "oec", "Partitioning policy: oec (outgoing edge cut), iec (incoming edge cut) or cvc (cartesian vertex cut).")
	compressPtr := flag.String("compress", "none", "Transport compression: none, zstd or lz4.")
	maxIterPtr := flag.Int("maxIter", 0, "Round limit for converging loops. 0 is unbounded.")
	runsPtr := flag.Int("runs", 1, "Number of times to run the algorithm.")

	undirectedPtr := flag.Bool("u", false, "Interpret the input graph as undirected (add the reverse of every edge).")
	transposePtr := flag.Bool("tr", false, "Interpret the input graph edges in reverse (flip src and dst).")
	weightedPtr := flag.Bool("w", false, "The third column of the edge list is a weight.")

	noBitsetPtr := flag.Bool("nobitset", false, "Synchronize every vertex of a field, not only those written.")
	noFilterPtr := flag.Bool("nofilter", false, "Synchronize all mirrors, ignoring where fields are written and read.")
	lazyPtr := flag.Bool("lazy", false, "Synchronize fields on demand, right before they are read.")
	noStealPtr := flag.Bool("nosteal", false, "Disable work stealing between worker threads.")

	verifyPtr := flag.Bool("verify", false, "Write each host's results to <out>.<host>.")
	outPtr := flag.String("out", "results", "Prefix of result files.")
	metricsPtr := flag.String("metrics", "", "If set, serve prometheus metrics on the given address:port. E.g. \"0.0.0.0:9090\".")
	statsPtr := flag.String("stats", "", "Write statistics to this file instead of stdout.")
	debugPtr := flag.Int("debug", 0, "Adds extra debug output. Level 0 for info, 1 for debug, 2 for trace.")
	colourPtr := flag.Bool("nc", false, "Removes the colouring from the log output.")
	jsonPtr := flag.Bool("json", false, "Log JSON lines instead of the console format.")
	flag.Parse()

	if *jsonPtr {
		utils.SetLoggerJSON(os.Stdout)
	} else if *colourPtr {
		utils.SetLoggerConsole(true)
	}
	utils.SetLevel(*debugPtr)

	if *graphPtr == "" {
		flag.Usage()
		os.Exit(1)
	}
	if *threadPtr <= 0 {
		log.Panic().Msg("Invalid thread count.")
	}

	options = Options{
		Name:          *graphPtr,
		ClusterFile:   *clusterPtr,
		NumThreads:    uint32(*threadPtr),
		NumHosts:      uint32(*hostsPtr),
		HostID:        uint32(*hostPtr),
		Policy:        *policyPtr,
		Compression:   *compressPtr,
		MaxIterations: uint32(*maxIterPtr),
		Runs:          uint32(*runsPtr),
		DebugLevel:    uint8(*debugPtr),
		Undirected:    *undirectedPtr,
		Transpose:     *transposePtr,
		Weighted:      *weightedPtr,
		NoBitsets:     *noBitsetPtr,
		NoFilters:     *noFilterPtr,
		OnDemand:      *lazyPtr,
		NoSteal:       *noStealPtr,
		Verify:        *verifyPtr,
		OutputPrefix:  *outPtr,
		MetricsAddr:   *metricsPtr,
		StatsFile:     *statsPtr,
		ColourOutput:  !*colourPtr,
		LogJSON:       *jsonPtr,
	}
	if options.ClusterFile != "" {
		if err := LoadClusterFile(options.ClusterFile, &options); err != nil {
			log.Panic().Err(err).Msg("Failed to load cluster file " + options.ClusterFile)
		}
	}
	options.Defaults()
	options.validate()
	return options
}
