// Package file implements ingest inbox commands for genarcctl. They address
// the file ingest service.
package file

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for inspecting files under interrogation.
var Cmd = &cobra.Command{
	Use:   "file",
	Short: "Ingest inbox inspection",
	Long: `Inspect the files the ingest service is interrogating.

These commands require a data hub token; point --server at the ingest
service.

Examples:
  # List every tracked file
  genarcctl file list

  # Show one file
  genarcctl file show examplefile001`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
}
