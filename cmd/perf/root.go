package perf

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ValentinKolb/dRef/cmd/util"
	"github.com/ValentinKolb/dRef/lib/common"
	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// PerfCmd benchmarks the collections in process
	PerfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for the reference-managed collections",
		Long: `Runs a set of benchmarks against the collections and maps with the configured
reference policy and prints the time per operation. The results can be exported as CSV.`,
		PreRunE: processPerfConfig,
		RunE:    run,
	}

	perfConfig     common.Config
	perfPolicy     = ref.PolicyStrong
	perfNumThreads = 10
	perfElements   = 1000
	perfSkip       = make([]string, 0)
)

func init() {
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set-add,map-get)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "elements"
	PerfCmd.Flags().Int(key, 1000, util.WrapString("How many different elements to use for the tests"))
	key = "policy"
	PerfCmd.Flags().String(key, "strong", util.WrapString("Reference policy of the tested collections (strong, weak, weak-identity, soft, soft-identity, time)"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "metrics"
	PerfCmd.Flags().Bool(key, false, util.WrapString("Print the processor metrics in the prometheus text format after the run"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	conf, err := util.GetConfig()
	if err != nil {
		return err
	}
	perfConfig = conf

	if perfPolicy, err = util.GetPolicy("policy"); err != nil {
		return err
	}
	perfElements = viper.GetInt("elements")
	perfNumThreads = viper.GetInt("threads")
	if perfElements <= 0 || perfNumThreads <= 0 {
		return fmt.Errorf("elements and threads must be positive")
	}
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// equivalence returns the string equivalence matching the policy
func equivalence(p ref.Policy) ref.Equivalence[string] {
	if p.Identity() {
		return ref.Identities[string]()
	}
	return ref.Strings()
}

// elements creates the test elements and a function to get one by index (with wraparound)
func elements(prefix string) ([]*string, func(int) *string) {
	out := make([]*string, perfElements)
	for i := range out {
		s := fmt.Sprintf("__test-%s-%d", prefix, i)
		out[i] = &s
	}
	return out, func(i int) *string { return out[i%len(out)] }
}
