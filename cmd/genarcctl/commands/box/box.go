// Package box implements upload box commands for genarcctl. They address
// the upload controller service.
package box

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for upload box management.
var Cmd = &cobra.Command{
	Use:   "box",
	Short: "Upload box management",
	Long: `Manage upload boxes on the upload controller.

Box commands open, inspect, lock, and unlock upload boxes, list the file
uploads they contain, and remove stuck uploads. The tokens minted for data
hub submitters work here too; point --server at the upload controller.

Examples:
  # Open a box on the inbox storage endpoint
  genarcctl box create --storage inbox-eu-1

  # Inspect a box
  genarcctl box show 7b1c9042-6a3e-4f37-9f2b-b0d5a1a6f001

  # Lock a box for interrogation
  genarcctl box lock 7b1c9042-6a3e-4f37-9f2b-b0d5a1a6f001

  # List the uploads in a box
  genarcctl box uploads 7b1c9042-6a3e-4f37-9f2b-b0d5a1a6f001`,
}

func init() {
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(lockCmd)
	Cmd.AddCommand(unlockCmd)
	Cmd.AddCommand(uploadsCmd)
	Cmd.AddCommand(removeUploadCmd)
}
