// Package cmdutil provides shared utilities for genarcctl commands.
package cmdutil

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fedarchive/genarc/internal/bytesize"
	"github.com/fedarchive/genarc/internal/cli/output"
	"github.com/fedarchive/genarc/pkg/apiclient"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL string
	Token     string
	Output    string
	Verbose   bool
}

// GetClient returns an API client for the service named by --server, or the
// GENARC_SERVER environment variable when the flag is absent. The bearer
// token comes from --token or GENARC_TOKEN; commands against authenticated
// routes fail server-side without one.
func GetClient() (*apiclient.Client, error) {
	url := Flags.ServerURL
	if url == "" {
		url = os.Getenv("GENARC_SERVER")
	}
	if url == "" {
		return nil, fmt.Errorf("no server URL configured. Pass --server or set GENARC_SERVER")
	}

	token := Flags.Token
	if token == "" {
		token = os.Getenv("GENARC_TOKEN")
	}

	client := apiclient.New(url)
	if token != "" {
		client = client.WithToken(token)
	}
	return client, nil
}

// ServerURL returns the configured server URL, for display purposes.
func ServerURL() string {
	if Flags.ServerURL != "" {
		return Flags.ServerURL
	}
	return os.Getenv("GENARC_SERVER")
}

// PrintResource renders one record: a table for the default format, the raw
// data for JSON and YAML.
func PrintResource(data any, renderer output.TableRenderer) error {
	format, err := output.ParseFormat(Flags.Output)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		return output.PrintTable(os.Stdout, renderer)
	}
	return output.Print(os.Stdout, format, data)
}

// PrintList renders a collection, with a placeholder message when it is
// empty and the format is table.
func PrintList(data any, isEmpty bool, emptyMsg string, renderer output.TableRenderer) error {
	format, err := output.ParseFormat(Flags.Output)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		if isEmpty {
			fmt.Println(emptyMsg)
			return nil
		}
		return output.PrintTable(os.Stdout, renderer)
	}
	return output.Print(os.Stdout, format, data)
}

// PrintSuccess prints a confirmation line in table format. JSON and YAML
// consumers parse the resource output instead, so the line is suppressed.
func PrintSuccess(msg string) {
	format, err := output.ParseFormat(Flags.Output)
	if err != nil || format != output.FormatTable {
		return
	}
	fmt.Println(msg)
}

// PrintResourceWithSuccess prints a confirmation line in table format, and
// the resource itself in JSON or YAML.
func PrintResourceWithSuccess(data any, successMsg string) error {
	format, err := output.ParseFormat(Flags.Output)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		fmt.Println(successMsg)
		return nil
	}
	return output.Print(os.Stdout, format, data)
}

// BoolToYesNo converts a boolean to "yes" or "no" for table cells.
func BoolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// FormatBytes renders a byte count with its human-readable form, e.g.
// "1073741824 (1.00GiB)". Counts under one KiB stay plain.
func FormatBytes(n int64) string {
	if n < 1024 {
		return strconv.FormatInt(n, 10)
	}
	return fmt.Sprintf("%d (%s)", n, bytesize.ByteSize(n))
}
