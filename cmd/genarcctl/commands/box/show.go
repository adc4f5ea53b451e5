package box

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
	"github.com/fedarchive/genarc/internal/cli/output"
)

var showCmd = &cobra.Command{
	Use:   "show <box-id>",
	Short: "Show one upload box",
	Long: `Display the state of one upload box: its storage endpoint, lock
state, accumulated size, and upload count.

Examples:
  # Show a box as a table
  genarcctl box show 7b1c9042-6a3e-4f37-9f2b-b0d5a1a6f001

  # Show as JSON
  genarcctl box show 7b1c9042-6a3e-4f37-9f2b-b0d5a1a6f001 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	box, err := client.GetBox(args[0])
	if err != nil {
		return err
	}

	kv := &output.KeyValues{}
	kv.Add("box_id", box.BoxID)
	kv.Add("storage_alias", box.StorageAlias)
	kv.Add("locked", cmdutil.BoolToYesNo(box.Locked))
	kv.Add("size", cmdutil.FormatBytes(box.Size))
	kv.Add("file_count", strconv.FormatInt(box.FileCount, 10))
	return cmdutil.PrintResource(box, kv)
}
