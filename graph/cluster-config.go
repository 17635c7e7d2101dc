package graph

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Cluster file layout. Every attribute is optional; those present override flags.
//
//	threads     = cpus
//	policy      = "cvc"
//	compression = "zstd"
//	host "0" { address = "10.0.0.1:7000" }
//	host "1" { address = "10.0.0.2:7000" }
type clusterFile struct {
	Threads       *int        `hcl:"threads,optional"`
	Policy        *string     `hcl:"policy,optional"`
	Compression   *string     `hcl:"compression,optional"`
	MaxIterations *int        `hcl:"max_iterations,optional"`
	Metrics       *string     `hcl:"metrics,optional"`
	Hosts         []hostBlock `hcl:"host,block"`
}

type hostBlock struct {
	ID      string `hcl:"id,label"`
	Address string `hcl:"address"`
}

// Reads an HCL cluster file into opts.
func LoadClusterFile(path string, opts *Options) error {
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return diags
	}
	return applyCluster(file, opts)
}

// As LoadClusterFile, from memory.
func ParseClusterConfig(src []byte, filename string, opts *Options) error {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return diags
	}
	return applyCluster(file, opts)
}

func clusterEvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"cpus": cty.NumberIntVal(int64(runtime.NumCPU())),
		},
	}
}

func applyCluster(file *hcl.File, opts *Options) error {
	var cf clusterFile
	if diags := gohcl.DecodeBody(file.Body, clusterEvalContext(), &cf); diags.HasErrors() {
		return diags
	}

	if cf.Threads != nil {
		if *cf.Threads <= 0 {
			return fmt.Errorf("threads must be positive, got %d", *cf.Threads)
		}
		opts.NumThreads = uint32(*cf.Threads)
	}
	if cf.Policy != nil {
		opts.Policy = *cf.Policy
	}
	if cf.Compression != nil {
		opts.Compression = *cf.Compression
	}
	if cf.MaxIterations != nil {
		if *cf.MaxIterations < 0 {
			return errors.New("max_iterations must not be negative")
		}
		opts.MaxIterations = uint32(*cf.MaxIterations)
	}
	if cf.Metrics != nil {
		opts.MetricsAddr = *cf.Metrics
	}

	if len(cf.Hosts) == 0 {
		return nil
	}
	peers := make([]string, len(cf.Hosts))
	for _, h := range cf.Hosts {
		id, err := strconv.Atoi(h.ID)
		if err != nil || id < 0 || id >= len(cf.Hosts) {
			return fmt.Errorf("host %q: ids must be 0 to %d", h.ID, len(cf.Hosts)-1)
		}
		if peers[id] != "" {
			return fmt.Errorf("host %d declared twice", id)
		}
		if h.Address == "" {
			return fmt.Errorf("host %d has no address", id)
		}
		peers[id] = h.Address
	}
	opts.Peers = peers
	opts.NumHosts = uint32(len(peers))
	return nil
}
