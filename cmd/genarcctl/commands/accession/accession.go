// Package accession implements registry commands for genarcctl. They
// address the internal file registry service.
package accession

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for accession management.
var Cmd = &cobra.Command{
	Use:   "accession",
	Short: "Registry accession management",
	Long: `Deposit accession assignments with the internal file registry and
look up registered files.

These commands require a data hub token; point --server at the registry
service.

Examples:
  # Assign an accession to an uploaded file
  genarcctl accession assign EGAF001=examplefile001

  # Look up a registered file
  genarcctl accession show EGAF001`,
}

func init() {
	Cmd.AddCommand(assignCmd)
	Cmd.AddCommand(showCmd)
}
