// Command orambench drives randomized workloads against an ORAM instance
// and reports throughput and physical access counts. With --metrics-addr
// it also exposes the counters over Prometheus.
package main

import (
	"crypto/rand"
	"fmt"
	"io"
	mathrand "math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	v "github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/oramkit/oram"
)

var (
	opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oram_ops_total",
		Help: "Logical ORAM operations performed.",
	}, []string{"op"})

	physicalReads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oram_physical_reads_total",
		Help: "Physical bucket reads issued across all recursion levels.",
	})

	physicalWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oram_physical_writes_total",
		Help: "Physical bucket writes issued across all recursion levels.",
	})

	opDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oram_op_duration_seconds",
		Help:    "Latency of one logical ORAM operation.",
		Buckets: prometheus.ExponentialBuckets(1e-6, 2, 20),
	})
)

type benchConfig struct {
	blocks      int
	blockSize   int
	bucketSize  int
	stash       int
	ops         int
	engine      string
	seed        uint64
	metricsAddr string
	verbose     bool
}

func newRootCommand() *cobra.Command {
	var bc benchConfig

	cmd := &cobra.Command{
		Use:   "orambench",
		Short: "Benchmark oblivious RAM engines",
		RunE: func(cmd *cobra.Command, args []string) error {
			bc.blocks = v.GetInt("bench.blocks")
			bc.blockSize = v.GetInt("bench.block_size")
			bc.bucketSize = v.GetInt("bench.bucket_size")
			bc.stash = v.GetInt("bench.stash")
			bc.ops = v.GetInt("bench.ops")
			bc.engine = v.GetString("bench.engine")
			bc.seed = v.GetUint64("bench.seed")
			bc.metricsAddr = v.GetString("bench.metrics_addr")
			bc.verbose = v.GetBool("bench.verbose")
			return runBench(bc)
		},
	}

	f := cmd.Flags()
	f.Int("blocks", 256, "Number of logical blocks")
	f.Int("block-size", 64, "Block size in bytes")
	f.Int("bucket-size", oram.DefaultBucketSize, "Blocks per bucket (Z)")
	f.Int("stash", oram.DefaultStashCapacity, "Stash capacity (S)")
	f.Int("ops", 10000, "Number of logical operations to run")
	f.String("engine", "path", "Engine to drive: path or linear")
	f.Uint64("seed", 0, "Deterministic seed; 0 uses the system random source")
	f.String("metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")
	f.Bool("verbose", false, "Debug logging")

	v.BindPFlag("bench.blocks", f.Lookup("blocks"))
	v.BindPFlag("bench.block_size", f.Lookup("block-size"))
	v.BindPFlag("bench.bucket_size", f.Lookup("bucket-size"))
	v.BindPFlag("bench.stash", f.Lookup("stash"))
	v.BindPFlag("bench.ops", f.Lookup("ops"))
	v.BindPFlag("bench.engine", f.Lookup("engine"))
	v.BindPFlag("bench.seed", f.Lookup("seed"))
	v.BindPFlag("bench.metrics_addr", f.Lookup("metrics-addr"))
	v.BindPFlag("bench.verbose", f.Lookup("verbose"))

	return cmd
}

type benchTarget interface {
	Access(op oram.Op, address uint64, newValue []byte) ([]byte, error)
}

func runBench(bc benchConfig) error {
	logger, err := newLogger(bc.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if bc.metricsAddr != "" {
		prometheus.MustRegister(opsTotal, physicalReads, physicalWrites, opDuration)
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(bc.metricsAddr, nil); err != nil {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", bc.metricsAddr))
	}

	cfg := oram.Config{
		NumBlocks:     bc.blocks,
		BlockSize:     bc.blockSize,
		BucketSize:    bc.bucketSize,
		StashCapacity: bc.stash,
		Logger:        logger,
	}

	var rng io.Reader = rand.Reader
	if bc.seed != 0 {
		rng = oram.NewSeededRNG(bc.seed)
	}

	var (
		target benchTarget
		stats  func() []oram.Stats
	)
	switch bc.engine {
	case "path":
		o, err := oram.New(cfg, rng)
		if err != nil {
			return err
		}
		logger.Info("path oram ready",
			zap.Int("blocks", bc.blocks),
			zap.Int("height", o.Height()),
			zap.Int("recursionDepth", o.RecursionDepth()))
		target = o
		stats = o.LevelStats
	case "linear":
		l, err := oram.NewLinear(cfg)
		if err != nil {
			return err
		}
		target = l
		stats = func() []oram.Stats { return []oram.Stats{l.Stats()} }
	default:
		return fmt.Errorf("unknown engine %q", bc.engine)
	}

	workload := mathrand.New(mathrand.NewPCG(bc.seed, ^bc.seed))
	value := make([]byte, bc.blockSize)

	start := time.Now()
	for i := 0; i < bc.ops; i++ {
		address := workload.Uint64N(uint64(bc.blocks))
		op := oram.Op(workload.IntN(2))
		if op == oram.OpWrite {
			for j := range value {
				value[j] = byte(workload.Uint32())
			}
		}

		opStart := time.Now()
		if _, err := target.Access(op, address, value); err != nil {
			return err
		}
		opDuration.Observe(time.Since(opStart).Seconds())
		if op == oram.OpWrite {
			opsTotal.WithLabelValues("write").Inc()
		} else {
			opsTotal.WithLabelValues("read").Inc()
		}
	}
	elapsed := time.Since(start)

	var reads, writes uint64
	levels := stats()
	for _, s := range levels {
		reads += s.PhysicalReads
		writes += s.PhysicalWrites
	}
	physicalReads.Add(float64(reads))
	physicalWrites.Add(float64(writes))

	logger.Info("benchmark complete",
		zap.Int("ops", bc.ops),
		zap.Duration("elapsed", elapsed),
		zap.Float64("opsPerSec", float64(bc.ops)/elapsed.Seconds()),
		zap.Uint64("physicalReads", reads),
		zap.Uint64("physicalWrites", writes),
		zap.Int("levels", len(levels)))

	for i, s := range levels {
		logger.Info("level counters",
			zap.Int("level", i),
			zap.Uint64("reads", s.PhysicalReads),
			zap.Uint64("writes", s.PhysicalWrites))
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
