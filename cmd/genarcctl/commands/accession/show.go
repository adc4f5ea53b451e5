package accession

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
	"github.com/fedarchive/genarc/internal/cli/output"
)

var showCmd = &cobra.Command{
	Use:   "show <accession>",
	Short: "Show one registered file",
	Long: `Display the registry's record of one archived file.

Examples:
  # Show as a table
  genarcctl accession show EGAF001

  # Show as YAML
  genarcctl accession show EGAF001 -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	f, err := client.GetRegisteredFile(args[0])
	if err != nil {
		return err
	}

	kv := &output.KeyValues{}
	kv.Add("accession", f.Accession)
	kv.Add("file_id", f.FileID)
	kv.Add("object_id", f.ObjectID)
	kv.Add("s3_endpoint_alias", f.StorageAlias)
	kv.Add("bucket_id", f.BucketID)
	kv.Add("decrypted_sha256", f.DecryptedSHA256)
	kv.Add("decrypted_size", cmdutil.FormatBytes(f.DecryptedSize))
	kv.Add("encrypted_size", cmdutil.FormatBytes(f.EncryptedSize))
	kv.Add("part_size", cmdutil.FormatBytes(f.PartSize))
	kv.Add("parts", strconv.Itoa(len(f.PartChecksumsMD5)))
	kv.Add("parts_md5", strings.Join(f.PartChecksumsMD5, ","))
	kv.Add("archive_date", f.ArchiveDate)
	return cmdutil.PrintResource(f, kv)
}
