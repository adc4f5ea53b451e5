package box

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock <box-id>",
	Short: "Unlock an upload box",
	Long: `Unlock a previously locked upload box so submitters can resume
uploading into it.

Examples:
  genarcctl box unlock 7b1c9042-6a3e-4f37-9f2b-b0d5a1a6f001`,
	Args: cobra.ExactArgs(1),
	RunE: runUnlock,
}

func runUnlock(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	if err := client.SetBoxLock(args[0], false); err != nil {
		return err
	}
	cmdutil.PrintSuccess(fmt.Sprintf("Box '%s' unlocked", args[0]))
	return nil
}
