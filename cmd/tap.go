package cmd

import (
	"bufio"
	"fmt"
	"io"

	"github.com/gruntwork-io/go-commons/errors"
	"github.com/robmorgan/clicktrack/config"
	"github.com/robmorgan/clicktrack/taptempo"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"
)

var tapCmd = &cobra.Command{
	Use:   "tap",
	Short: "Tap Enter in time to measure a tempo",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		est := taptempo.NewEstimator(clock.RealClock{}, cfg.Tap.History, cfg.Tap.Shift)
		return tapLoop(cmd.InOrStdin(), cmd.OutOrStdout(), est, clock.RealClock{})
	},
}

func init() {
	rootCmd.AddCommand(tapCmd)
}

// tapLoop records a tap for every line read from in and prints the estimate, if any, after each one.
func tapLoop(in io.Reader, out io.Writer, est *taptempo.Estimator, clk clock.PassiveClock) error {
	fmt.Fprintln(out, "Press Enter on every beat, Ctrl+D to finish.")

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		est.RecordTap(clk.Now())
		e, ok := est.Evaluate()
		if !ok {
			fmt.Fprintln(out, "...")
			continue
		}
		fmt.Fprintf(out, "%.0f bpm\n", e.BPM)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return errors.WithStackTrace(err)
	}
	return nil
}
