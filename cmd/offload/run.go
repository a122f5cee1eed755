package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/host"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Initialize the module, run one proof and print the result",
	Long: `Run starts an execution context, waits for the module to initialize,
triggers a single run and prints its result. The exit status is non-zero
when initialization or the run fails.`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().Duration("timeout", 5*time.Minute, "Give up waiting after this long")
	runCmd.Flags().Bool("json", false, "Print the outcome as JSON")
	rootCmd.AddCommand(runCmd)
}

type runReport struct {
	Error      string `json:"error,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Result     string `json:"result,omitempty"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
}

func runOnce(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	ctrl := a.controller()
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		_ = ctrl.Dispose(dctx)
	}()

	report, runErr := runAndWait(ctx, ctrl)
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		return runErr
	}
	if runErr != nil {
		return runErr
	}

	line := fmt.Sprintf("%s (%s, %dms)", report.Result, report.RequestID, report.DurationMS)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		line = resultStyle.Render(report.Result) + helpStyle.Render(fmt.Sprintf("  %s, %dms", report.RequestID, report.DurationMS))
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
	return nil
}

// runAndWait waits for initialization to settle and performs one run.
func runAndWait(ctx context.Context, ctrl *host.Controller) (runReport, error) {
	st, err := ctrl.Settled(ctx)
	if err != nil {
		return runReport{Status: st.String(), Error: err.Error()}, err
	}
	if st.Status == host.StatusError {
		err := errors.InitFault(st.Message)
		return runReport{Status: st.String(), Error: st.Message}, err
	}

	req, err := ctrl.TriggerRun()
	if err != nil {
		return runReport{Status: ctrl.State().String(), Error: errors.Message(err)}, err
	}
	result, err := req.Wait(ctx)
	report := runReport{
		Status:     ctrl.State().String(),
		RequestID:  req.ID,
		Result:     result,
		DurationMS: time.Since(req.Started()).Milliseconds(),
	}
	if err != nil {
		report.Error = errors.Message(err)
		return report, err
	}
	return report, nil
}
