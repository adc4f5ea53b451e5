package box

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
)

var createStorage string

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a new upload box",
	Long: `Open a new upload box on the given storage endpoint.

The box id is printed on success and identifies the box in every later
command and in the tokens minted for submitters.

Examples:
  # Open a box
  genarcctl box create --storage inbox-eu-1

  # Open a box and capture the id
  BOX_ID=$(genarcctl box create --storage inbox-eu-1 -o json | jq -r .box_id)`,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createStorage, "storage", "", "Storage endpoint alias for the box (required)")
	_ = createCmd.MarkFlagRequired("storage")
}

func runCreate(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	boxID, err := client.CreateBox(createStorage)
	if err != nil {
		return err
	}

	return cmdutil.PrintResourceWithSuccess(
		map[string]string{"box_id": boxID},
		fmt.Sprintf("Box '%s' created on storage '%s'", boxID, createStorage))
}
