// Package commands implements the CLI commands for the genarcctl client.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
	accessioncmd "github.com/fedarchive/genarc/cmd/genarcctl/commands/accession"
	boxcmd "github.com/fedarchive/genarc/cmd/genarcctl/commands/box"
	filecmd "github.com/fedarchive/genarc/cmd/genarcctl/commands/file"
	objectcmd "github.com/fedarchive/genarc/cmd/genarcctl/commands/object"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "genarcctl",
	Short: "Genomic archive control - pipeline management client",
	Long: `genarcctl is the command-line client for operating the genomic archive
pipeline services over their REST APIs.

Each command group talks to one service: box commands address the upload
controller, file commands the ingest service, accession commands the internal
registry, and object commands the download service. Point --server (or
GENARC_SERVER) at the service the command targets and pass a token via
--token or GENARC_TOKEN.

Use "genarcctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Sync flags to cmdutil.Flags for subcommands
		cmdutil.Flags.ServerURL, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.Token, _ = cmd.Flags().GetString("token")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().String("server", "", "Service base URL (or GENARC_SERVER)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token (or GENARC_TOKEN)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(boxcmd.Cmd)
	rootCmd.AddCommand(filecmd.Cmd)
	rootCmd.AddCommand(accessioncmd.Cmd)
	rootCmd.AddCommand(objectcmd.Cmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
