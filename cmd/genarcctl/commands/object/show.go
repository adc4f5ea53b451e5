package object

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
	"github.com/fedarchive/genarc/internal/cli/output"
	"github.com/fedarchive/genarc/pkg/apiclient"
)

var showCmd = &cobra.Command{
	Use:   "show <object-id>",
	Short: "Resolve one DRS object",
	Long: `Resolve one DRS object to its checksums and presigned access URL.

An object whose bytes are still being staged into the outbox is reported
with the delay the server suggested; retry after that.

Examples:
  # Resolve an object
  genarcctl object show examplefile001

  # Extract the presigned URL
  genarcctl object show examplefile001 -o json | jq -r .access_methods[0].access_url.url`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	obj, err := client.GetObject(args[0])
	if err != nil {
		var staging *apiclient.ObjectStagingError
		if errors.As(err, &staging) {
			fmt.Printf("Object '%s' is being staged; retry after %s\n", staging.ObjectID, staging.RetryAfter)
			return nil
		}
		return err
	}

	kv := &output.KeyValues{}
	kv.Add("id", obj.ID)
	kv.Add("self_uri", obj.SelfURI)
	kv.Add("size", cmdutil.FormatBytes(obj.Size))
	kv.Add("created_time", obj.CreatedTime.String())
	for _, cs := range obj.Checksums {
		kv.Add("checksum/"+cs.Type, cs.Checksum)
	}
	for _, am := range obj.AccessMethods {
		kv.Add("access/"+am.Type, am.AccessURL.URL)
	}
	return cmdutil.PrintResource(obj, kv)
}
