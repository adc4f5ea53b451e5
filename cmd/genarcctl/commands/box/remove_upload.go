package box

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
)

var removeUploadCmd = &cobra.Command{
	Use:   "remove-upload <box-id> <file-id>",
	Short: "Remove one upload from a box",
	Long: `Remove one file upload from a box, aborting its multipart upload
and deleting any bytes already stored.

This is the recovery path for uploads a submitter abandoned in an open box.

Examples:
  genarcctl box remove-upload 7b1c9042-6a3e-4f37-9f2b-b0d5a1a6f001 examplefile001`,
	Args: cobra.ExactArgs(2),
	RunE: runRemoveUpload,
}

func runRemoveUpload(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	if err := client.RemoveUpload(args[0], args[1]); err != nil {
		return err
	}
	cmdutil.PrintSuccess(fmt.Sprintf("Upload '%s' removed from box '%s'", args[1], args[0]))
	return nil
}
