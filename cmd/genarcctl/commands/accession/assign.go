package accession

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
	"github.com/fedarchive/genarc/pkg/apiclient"
)

var assignCmd = &cobra.Command{
	Use:   "assign <accession>=<file-id> [<accession>=<file-id>...]",
	Short: "Assign accessions to uploaded files",
	Long: `Deposit one or more accession assignments with the registry.

Each argument binds one accession to one public file id. The registry
validates the whole batch before storing any of it; a file whose validated
upload has already arrived is registered immediately.

Examples:
  # Assign a single accession
  genarcctl accession assign EGAF001=examplefile001

  # Assign a batch
  genarcctl accession assign EGAF001=examplefile001 EGAF002=examplefile002`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssign,
}

func runAssign(cmd *cobra.Command, args []string) error {
	pairs := make([]apiclient.AccessionPair, 0, len(args))
	for _, arg := range args {
		accession, fileID, ok := strings.Cut(arg, "=")
		if !ok || accession == "" || fileID == "" {
			return fmt.Errorf("invalid assignment %q, expected <accession>=<file-id>", arg)
		}
		pairs = append(pairs, apiclient.AccessionPair{Accession: accession, FileID: fileID})
	}

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	if err := client.StoreAccessions(pairs); err != nil {
		return err
	}
	cmdutil.PrintSuccess(fmt.Sprintf("%d accession(s) deposited", len(pairs)))
	return nil
}
