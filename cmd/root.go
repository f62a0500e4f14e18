package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dRef/cmd/codec"
	"github.com/ValentinKolb/dRef/cmd/perf"
	"github.com/ValentinKolb/dRef/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dref",
		Short: "reference-managed concurrent collections",
		Long: fmt.Sprintf(`dRef (v%s)

Concurrent collections and maps for Go whose elements are held strongly,
weakly, softly or with time based expiry. Dead elements are swept from the
collections by a reference processor.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dRef",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dRef v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(codec.CodecCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupConfigFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
