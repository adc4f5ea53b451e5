// Package object implements DRS object commands for genarcctl. They address
// the download service's GA4GH DRS surface.
package object

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for DRS object access.
var Cmd = &cobra.Command{
	Use:   "object",
	Short: "DRS object access",
	Long: `Resolve DRS objects and fetch their decryption envelopes from the
download service.

These routes require a download work-order token bound to the object id;
pass it via --token and point --server at the download service.

Examples:
  # Resolve an object to its presigned URL
  genarcctl object show examplefile001

  # Fetch the decryption envelope into a file
  genarcctl object envelope examplefile001 --out examplefile001.c4gh.hdr`,
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(envelopeCmd)
}
