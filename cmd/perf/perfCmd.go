package perf

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dRef/cmd/util"
	"github.com/ValentinKolb/dRef/lib/collection"
	"github.com/ValentinKolb/dRef/lib/processor"
	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/ValentinKolb/dRef/lib/refmap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// benchmark is one named test of the run
type benchmark struct {
	name string
	fn   func(b *testing.B)
}

func benchmarks() []benchmark {
	return []benchmark{
		{"set-add", benchSetAdd},
		{"set-contains", benchSetContains},
		{"sorted-add", benchSortedAdd},
		{"map-put", benchMapPut},
		{"map-get", benchMapGet},
		{"queue", benchQueue},
		{"blocking", benchBlocking},
		{"churn", benchChurn},
	}
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for the reference-managed collections")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(perfConfig.String())
	fmt.Printf("Policy: %s\n", perfPolicy)
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Elements: %d\n", perfElements)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, bm := range benchmarks() {
		if shouldSkip(bm.name) {
			results[bm.name] = testing.BenchmarkResult{}
			printResult(bm.name, testing.BenchmarkResult{})
			continue
		}
		res := testing.Benchmark(bm.fn)
		results[bm.name] = res
		printResult(bm.name, res)
	}

	if viper.GetBool("metrics") {
		fmt.Println()
		processor.WritePrometheus(os.Stdout)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

func newSet(b *testing.B) *collection.Set[string] {
	s, err := collection.NewSet(perfPolicy, equivalence(perfPolicy), collection.WithConfig(perfConfig), collection.WithName("perf-set"))
	if err != nil {
		b.Fatalf("failed to create set: %v", err)
	}
	b.Cleanup(func() { _ = s.Close() })
	return s
}

func newMap(b *testing.B) *refmap.Map[string, string] {
	eq := equivalence(perfPolicy)
	m, err := refmap.New(perfPolicy, eq, perfPolicy, eq, refmap.WithConfig(perfConfig), refmap.WithName("perf-map"))
	if err != nil {
		b.Fatalf("failed to create map: %v", err)
	}
	b.Cleanup(func() { _ = m.Close() })
	return m
}

func benchSetAdd(b *testing.B) {
	s := newSet(b)
	_, get := elements("set-add")

	b.SetParallelism(perfNumThreads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			s.Add(get(counter))
			counter++
		}
	})

	if stats, ok := s.Distribution(); ok {
		util.Logger.Infof("(set-add) - longest hash chain %.0f, distribution quality %.2f", stats.Max, stats.DistributionQuality)
	}
}

func benchSetContains(b *testing.B) {
	s := newSet(b)
	keys, get := elements("set-contains")
	for _, k := range keys {
		s.Add(k)
	}

	b.SetParallelism(perfNumThreads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			if !s.Contains(get(counter)) && perfPolicy == ref.PolicyStrong {
				util.Logger.Warningf("(set-contains) - element %d is missing", counter%len(keys))
			}
			counter++
		}
	})
	runtime.KeepAlive(keys)
}

func benchSortedAdd(b *testing.B) {
	s, err := collection.NewSortedSet(perfPolicy, equivalence(perfPolicy),
		func(x, y *string) int { return strings.Compare(*x, *y) },
		collection.WithConfig(perfConfig), collection.WithName("perf-sorted"))
	if err != nil {
		b.Fatalf("failed to create sorted set: %v", err)
	}
	b.Cleanup(func() { _ = s.Close() })
	_, get := elements("sorted-add")

	b.SetParallelism(perfNumThreads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			v := get(counter)
			if counter%2 == 0 {
				s.Add(v)
			} else {
				s.Remove(v)
			}
			counter++
		}
	})
}

func benchMapPut(b *testing.B) {
	m := newMap(b)
	_, get := elements("map-put")

	b.SetParallelism(perfNumThreads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			k := get(counter)
			m.Put(k, k)
			counter++
		}
	})
}

func benchMapGet(b *testing.B) {
	m := newMap(b)
	keys, get := elements("map-get")
	for _, k := range keys {
		m.Put(k, k)
	}

	b.SetParallelism(perfNumThreads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			m.Get(get(counter))
			counter++
		}
	})
	runtime.KeepAlive(keys)
}

func benchQueue(b *testing.B) {
	q, err := collection.NewQueue(perfPolicy, equivalence(perfPolicy), collection.WithConfig(perfConfig), collection.WithName("perf-queue"))
	if err != nil {
		b.Fatalf("failed to create queue: %v", err)
	}
	b.Cleanup(func() { _ = q.Close() })
	keys, get := elements("queue")

	b.SetParallelism(perfNumThreads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			q.Offer(get(counter))
			q.Poll()
			counter++
		}
	})
	runtime.KeepAlive(keys)
}

func benchBlocking(b *testing.B) {
	q, err := collection.NewBlockingQueue(perfPolicy, equivalence(perfPolicy),
		collection.WithConfig(perfConfig), collection.WithCapacity(perfNumThreads), collection.WithName("perf-blocking"))
	if err != nil {
		b.Fatalf("failed to create blocking queue: %v", err)
	}
	b.Cleanup(func() { _ = q.Close() })
	keys, get := elements("blocking")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	b.SetParallelism(perfNumThreads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			if err := q.Put(ctx, get(counter)); err != nil {
				util.Logger.Warningf("(blocking) - error putting element: %v", err)
				return
			}
			if _, err := q.Take(ctx); err != nil {
				util.Logger.Warningf("(blocking) - error taking element: %v", err)
				return
			}
			counter++
		}
	})
	runtime.KeepAlive(keys)
}

// benchChurn adds fresh elements only referenced by the set, collectable
// policies have to sweep them again
func benchChurn(b *testing.B) {
	s := newSet(b)

	b.SetParallelism(perfNumThreads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			v := strconv.Itoa(counter)
			s.Add(&v)
			counter++
			if counter%1024 == 0 {
				s.ProcessQueue()
			}
		}
	})

	b.StopTimer()
	runtime.GC()
	res := s.Sweep()
	util.Logger.Infof("(churn) - %d elements left, last sweep removed %d", s.Len(), res.Removed)
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\t%d B/op\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec, result.AllocedBytesPerOp())
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Policy", "Threads", "Elements",
		"Cycle", "Background", "SoftMillisPerMiB",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp, opsPerSec float64
		skipped := "true"

		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			perfPolicy.String(),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfElements),
			perfConfig.Cycle.String(),
			strconv.FormatBool(perfConfig.Background),
			strconv.FormatInt(perfConfig.SoftMillisPerMiB, 10),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
