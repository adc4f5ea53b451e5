package file

import (
	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
	"github.com/fedarchive/genarc/internal/cli/output"
)

var showCmd = &cobra.Command{
	Use:   "show <file-id>",
	Short: "Show one tracked file",
	Long: `Display the ingest service's record of one file: where its bytes
sit, the sizes and checksum learned so far, and its interrogation state.

Examples:
  genarcctl file show examplefile001`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	f, err := client.GetIngestedFile(args[0])
	if err != nil {
		return err
	}

	kv := &output.KeyValues{}
	kv.Add("file_id", f.FileID)
	kv.Add("state", f.State)
	kv.Add("s3_endpoint_alias", f.StorageAlias)
	kv.Add("bucket_id", f.BucketID)
	kv.Add("object_id", f.ObjectID)
	kv.Add("decrypted_size", cmdutil.FormatBytes(f.DecryptedSize))
	kv.Add("encrypted_size", cmdutil.FormatBytes(f.EncryptedSize))
	kv.Add("decrypted_sha256", f.DecryptedSHA256)
	kv.Add("interrogated", cmdutil.BoolToYesNo(f.Interrogated))
	kv.Add("can_remove", cmdutil.BoolToYesNo(f.CanRemove))
	return cmdutil.PrintResource(f, kv)
}
