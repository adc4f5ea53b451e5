package box

import (
	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
)

var uploadsCmd = &cobra.Command{
	Use:   "uploads <box-id>",
	Short: "List the uploads in a box",
	Long: `List the file ids of every upload in a box, complete or not.

Examples:
  # List uploads as a table
  genarcctl box uploads 7b1c9042-6a3e-4f37-9f2b-b0d5a1a6f001

  # List as JSON
  genarcctl box uploads 7b1c9042-6a3e-4f37-9f2b-b0d5a1a6f001 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runUploads,
}

// uploadList renders file ids for table display.
type uploadList []string

func (ul uploadList) Headers() []string {
	return []string{"FILE ID"}
}

func (ul uploadList) Rows() [][]string {
	rows := make([][]string, 0, len(ul))
	for _, id := range ul {
		rows = append(rows, []string{id})
	}
	return rows
}

func runUploads(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	ids, err := client.ListUploads(args[0])
	if err != nil {
		return err
	}

	return cmdutil.PrintList(map[string][]string{"file_ids": ids},
		len(ids) == 0, "No uploads in this box.", uploadList(ids))
}
