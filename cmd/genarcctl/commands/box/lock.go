package box

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
)

var lockCmd = &cobra.Command{
	Use:   "lock <box-id>",
	Short: "Lock an upload box",
	Long: `Lock an upload box so no further uploads can start.

Locking fails with a conflict while any upload in the box is still
incomplete. A locked box is what the ingest service interrogates.

Examples:
  genarcctl box lock 7b1c9042-6a3e-4f37-9f2b-b0d5a1a6f001`,
	Args: cobra.ExactArgs(1),
	RunE: runLock,
}

func runLock(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	if err := client.SetBoxLock(args[0], true); err != nil {
		return err
	}
	cmdutil.PrintSuccess(fmt.Sprintf("Box '%s' locked", args[0]))
	return nil
}
