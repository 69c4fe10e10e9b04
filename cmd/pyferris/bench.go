package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pyferris/pyferris/pkg/parallel"
)

var benchN int
var benchWorkers int

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a parallel map micro-benchmark over N integers",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchN, "n", 1_000_000, "number of elements to map")
	benchCmd.Flags().IntVar(&benchWorkers, "workers", 0, "worker count (0 = hardware parallelism)")
}

func runBench(cmd *cobra.Command, args []string) error {
	xs := make([]int, benchN)
	for i := range xs {
		xs[i] = i
	}

	engine := parallel.New(benchWorkers, 0)
	start := time.Now()
	results, err := parallel.Map(engine, func(x int) (int, error) { return x * 2, nil }, xs)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("mapped %d elements with %d workers in %s (%.0f elements/sec)\n",
		len(results), engine.Workers, elapsed, float64(len(results))/elapsed.Seconds())
	return nil
}
