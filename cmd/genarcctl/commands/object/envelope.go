package object

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
)

var envelopeOut string

var envelopeCmd = &cobra.Command{
	Use:   "envelope <object-id>",
	Short: "Fetch an object's decryption envelope",
	Long: `Fetch the Crypt4GH envelope of one object, re-encrypted for the
public key carried by the work-order token.

Prepending the envelope to the downloaded bytes yields a Crypt4GH file the
token holder's private key can open.

Examples:
  # Write the envelope to a file
  genarcctl object envelope examplefile001 --out examplefile001.c4gh.hdr

  # Print the envelope as base64
  genarcctl object envelope examplefile001`,
	Args: cobra.ExactArgs(1),
	RunE: runEnvelope,
}

func init() {
	envelopeCmd.Flags().StringVar(&envelopeOut, "out", "", "Write the binary envelope to this file instead of printing base64")
}

func runEnvelope(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	content, err := client.GetEnvelope(args[0])
	if err != nil {
		return err
	}

	if envelopeOut == "" {
		fmt.Println(content)
		return nil
	}

	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return fmt.Errorf("server returned an invalid envelope: %w", err)
	}
	if err := os.WriteFile(envelopeOut, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	cmdutil.PrintSuccess(fmt.Sprintf("Envelope written to %s (%d bytes)", envelopeOut, len(raw)))
	return nil
}
