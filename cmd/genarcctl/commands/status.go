package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fedarchive/genarc/cmd/genarcctl/cmdutil"
	"github.com/fedarchive/genarc/internal/cli/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service status",
	Long: `Display the health of the targeted pipeline service.

The command probes the liveness and readiness endpoints and reports the
per-dependency results.

Examples:
  # Check the upload controller
  genarcctl status --server http://localhost:8080

  # Output as JSON
  genarcctl status -o json`,
	RunE: runStatus,
}

// serviceStatus is the status result for display.
type serviceStatus struct {
	Server string            `json:"server" yaml:"server"`
	Alive  bool              `json:"alive" yaml:"alive"`
	Ready  bool              `json:"ready" yaml:"ready"`
	Checks map[string]string `json:"checks,omitempty" yaml:"checks,omitempty"`
	Error  string            `json:"error,omitempty" yaml:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	st := serviceStatus{Server: cmdutil.ServerURL()}
	if err := client.Alive(); err != nil {
		st.Error = err.Error()
		return printStatus(st)
	}
	st.Alive = true

	ready, readiness, err := client.Ready()
	if err != nil {
		st.Error = err.Error()
		return printStatus(st)
	}
	st.Ready = ready
	st.Checks = readiness.Checks

	if err := printStatus(st); err != nil {
		return err
	}
	if !ready {
		os.Exit(1)
	}
	return nil
}

func printStatus(st serviceStatus) error {
	kv := &output.KeyValues{}
	kv.Add("server", st.Server)
	kv.Add("alive", cmdutil.BoolToYesNo(st.Alive))
	kv.Add("ready", cmdutil.BoolToYesNo(st.Ready))
	for name, result := range st.Checks {
		kv.Add(fmt.Sprintf("check/%s", name), result)
	}
	if st.Error != "" {
		kv.Add("error", st.Error)
	}
	return cmdutil.PrintResource(st, kv)
}
