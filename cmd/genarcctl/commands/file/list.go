package file

import (
	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
	"github.com/fedarchive/genarc/internal/bytesize"
	"github.com/fedarchive/genarc/pkg/apiclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List files under interrogation",
	Long: `List every file the ingest service is tracking, with its
interrogation state.

Examples:
  # List files as a table
  genarcctl file list

  # List as JSON
  genarcctl file list -o json`,
	RunE: runList,
}

// fileList renders tracked files for table display.
type fileList []apiclient.InterrogatedFile

func (fl fileList) Headers() []string {
	return []string{"FILE ID", "STATE", "STORAGE", "ENCRYPTED SIZE", "INTERROGATED"}
}

func (fl fileList) Rows() [][]string {
	rows := make([][]string, 0, len(fl))
	for _, f := range fl {
		rows = append(rows, []string{
			f.FileID,
			f.State,
			f.StorageAlias,
			bytesize.ByteSize(f.EncryptedSize).String(),
			cmdutil.BoolToYesNo(f.Interrogated),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	files, err := client.ListFiles()
	if err != nil {
		return err
	}

	return cmdutil.PrintList(map[string][]apiclient.InterrogatedFile{"files": files},
		len(files) == 0, "No files under interrogation.", fileList(files))
}
