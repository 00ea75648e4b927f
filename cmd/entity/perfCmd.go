package entity

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/tKV/cmd/util"
	libentity "github.com/ValentinKolb/tKV/lib/entity"
	"github.com/ValentinKolb/tKV/lib/txn"
	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the transaction layer",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfEntityType = "__perf"
	perfNumThreads = 10
	perfKeySpread  = 100
	perfNumOps     = 10000
	perfSkip       = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	EntityCommands.PersistentFlags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. insert,lookup)"))
	key = "threads"
	EntityCommands.PersistentFlags().Int(key, 10, util.WrapString("Number of concurrent transaction producers"))
	key = "keys"
	EntityCommands.PersistentFlags().Int(key, 100, util.WrapString("How many different entity keys to use for the tests"))
	key = "ops"
	EntityCommands.PersistentFlags().Int(key, 10000, util.WrapString("How many transactions each benchmark runs"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "show-metrics"
	perfTestCmd.Flags().Bool(key, false, util.WrapString("Print the transaction layer's Prometheus metrics after the run"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfKeySpread = viper.GetInt("keys")
	perfNumOps = viper.GetInt("ops")
	if skip := viper.GetString("skip"); skip != "" {
		perfSkip = strings.Split(skip, ",")
	}

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for the tKV transaction layer")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Keys:    %d\n", perfKeySpread)
	fmt.Printf("Ops:     %d\n", perfNumOps)
	fmt.Println()

	fmt.Println("starting tests...")

	registry := metrics.NewRegistry()
	results := make(map[string]metrics.Timer)

	// insert: every transaction commits one fresh entity
	insertTimer := metrics.NewRegisteredTimer("insert", registry)
	runWorkload("insert", insertTimer, func(i int) error {
		return manager.TransactAndWait(func(c *txn.Context) error {
			if err := c.Insert(libentity.Entity{
				Type:   perfEntityType,
				Key:    perfKey("insert", i),
				Fields: map[string]string{"n": strconv.Itoa(i)},
			}); err != nil {
				return err
			}
			return c.Commit()
		})
	})
	results["insert"] = insertTimer
	printPerfResult("insert", insertTimer)

	// lookup: read-only transactions over the inserted key spread
	seedKeys("lookup")
	lookupTimer := metrics.NewRegisteredTimer("lookup", registry)
	runWorkload("lookup", lookupTimer, func(i int) error {
		return manager.TransactAndWait(func(c *txn.Context) error {
			_, _, err := c.Lookup(perfEntityType, perfKey("lookup", i))
			return err
		})
	})
	results["lookup"] = lookupTimer
	printPerfResult("lookup", lookupTimer)

	// update: rewrite a field on an existing entity
	seedKeys("update")
	updateTimer := metrics.NewRegisteredTimer("update", registry)
	runWorkload("update", updateTimer, func(i int) error {
		return manager.TransactAndWait(func(c *txn.Context) error {
			if err := c.Update(libentity.Entity{
				Type:   perfEntityType,
				Key:    perfKey("update", i),
				Fields: map[string]string{"n": strconv.Itoa(i)},
			}); err != nil {
				return err
			}
			return c.Commit()
		})
	})
	results["update"] = updateTimer
	printPerfResult("update", updateTimer)

	// delete: remove and reinsert so every transaction has work to do
	seedKeys("delete")
	deleteTimer := metrics.NewRegisteredTimer("delete", registry)
	runWorkload("delete", deleteTimer, func(i int) error {
		return manager.TransactAndWait(func(c *txn.Context) error {
			if err := c.Delete(perfEntityType, perfKey("delete", i)); err != nil {
				return err
			}
			return c.Commit()
		})
	})
	results["delete"] = deleteTimer
	printPerfResult("delete", deleteTimer)

	// mixed: rotating insert/lookup/update/delete inside one transaction each
	seedKeys("mixed")
	mixedTimer := metrics.NewRegisteredTimer("mixed", registry)
	runWorkload("mixed", mixedTimer, func(i int) error {
		return manager.TransactAndWait(func(c *txn.Context) error {
			key := perfKey("mixed", i)
			switch i % 4 {
			case 0:
				exists, err := c.Has(perfEntityType, key)
				if err != nil {
					return err
				}
				e := libentity.Entity{
					Type:   perfEntityType,
					Key:    key,
					Fields: map[string]string{"n": strconv.Itoa(i)},
				}
				if exists {
					err = c.Update(e)
				} else {
					err = c.Insert(e)
				}
				if err != nil {
					return err
				}
				return c.Commit()
			case 1:
				_, _, err := c.Lookup(perfEntityType, key)
				return err
			case 2:
				if err := c.Delete(perfEntityType, key); err != nil {
					return err
				}
				return c.Commit()
			default:
				_, err := c.Has(perfEntityType, key)
				return err
			}
		})
	})
	results["mixed"] = mixedTimer
	printPerfResult("mixed", mixedTimer)

	// remove all perf entities so they do not end up in the snapshot
	if err := cleanupPerfEntities(); err != nil {
		return err
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writePerfResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	// Dump the transaction layer's own counters if requested
	if viper.GetBool("show-metrics") {
		fmt.Println()
		vmetrics.WritePrometheus(os.Stdout, false)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// perfKey returns the i-th test key for a benchmark (with wraparound)
func perfKey(prefix string, i int) string {
	return fmt.Sprintf("%s-%d", prefix, i%perfKeySpread)
}

// seedKeys inserts the full key spread for a benchmark in one transaction
func seedKeys(prefix string) {
	err := manager.TransactAndWait(func(c *txn.Context) error {
		for i := 0; i < perfKeySpread; i++ {
			key := perfKey(prefix, i)
			exists, err := c.Has(perfEntityType, key)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := c.Insert(libentity.Entity{
				Type:   perfEntityType,
				Key:    key,
				Fields: map[string]string{"n": "0"},
			}); err != nil {
				return err
			}
		}
		return c.Commit()
	})
	if err != nil {
		log.Printf("(%s) - error seeding keys: %v\n", prefix, err)
	}
}

// runWorkload spreads perfNumOps operations over perfNumThreads goroutines
// and records each operation's duration in the timer
func runWorkload(test string, timer metrics.Timer, op func(i int) error) {
	if shouldSkip(test) {
		return
	}

	var wg sync.WaitGroup
	for t := 0; t < perfNumThreads; t++ {
		wg.Add(1)
		go func(thread int) {
			defer wg.Done()
			for i := thread; i < perfNumOps; i += perfNumThreads {
				timer.Time(func() {
					if err := op(i); err != nil {
						log.Printf("(%s) - error performing operation: %v\n", test, err)
					}
				})
			}
		}(t)
	}
	wg.Wait()
}

// cleanupPerfEntities deletes every entity the benchmarks created
func cleanupPerfEntities() error {
	return manager.TransactAndWait(func(c *txn.Context) error {
		var keys []string
		if err := c.Scan(perfEntityType, func(e libentity.Entity) bool {
			keys = append(keys, e.Key)
			return true
		}); err != nil {
			return err
		}
		for _, key := range keys {
			if err := c.Delete(perfEntityType, key); err != nil {
				return err
			}
		}
		return c.Commit()
	})
}

// printPerfResult prints the result of a benchmark test in a formatted way
func printPerfResult(test string, timer metrics.Timer) {
	if timer.Count() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	mean := time.Duration(int64(timer.Mean()))
	p99 := time.Duration(int64(timer.Percentile(0.99)))

	fmt.Printf("%-20s%v/op (p99 %v)\t%.0f ops/sec\n", test, mean, p99, timer.RateMean())
}

// writePerfResultsToCSV writes benchmark results to a CSV file
func writePerfResultsToCSV(csvPath string, results map[string]metrics.Timer) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Count", "MeanNs", "P99Ns", "OpsPerSec", "Skipped",
		"Codec", "Threads", "Keys Count", "Ops Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, timer := range results {
		skipped := "false"
		if timer.Count() == 0 {
			skipped = "true"
		}

		row := []string{
			test,
			strconv.FormatInt(timer.Count(), 10),
			fmt.Sprintf("%.0f", timer.Mean()),
			fmt.Sprintf("%.0f", timer.Percentile(0.99)),
			fmt.Sprintf("%.0f", timer.RateMean()),
			skipped,
			viper.GetString("codec"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfNumOps),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
