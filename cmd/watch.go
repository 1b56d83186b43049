package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mifi-dashboard/monitor/gateway"
	"github.com/mifi-dashboard/monitor/poller"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the device and print one line per snapshot",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("service", false, "Poll in background mode, with status notifications")
	_ = viper.BindPFlag("watch.service", watchCmd.Flags().Lookup("service"))
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := a.store.Subscribe()
	defer sub.Close()

	if viper.GetBool("watch.service") {
		a.poller.StartService()
	} else {
		a.poller.StartAutoRefresh()
	}

	return printUpdates(ctx, os.Stdout, sub.Updates())
}

// printUpdates writes one line per snapshot until ctx is done or updates closes.
func printUpdates(ctx context.Context, w io.Writer, updates <-chan gateway.Metrics) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-updates:
			if !ok {
				return nil
			}
			if m.LastUpdate == 0 {
				continue
			}
			if _, err := fmt.Fprintln(w, formatLine(m)); err != nil {
				return err
			}
		}
	}
}

func formatLine(m gateway.Metrics) string {
	at := m.LastUpdateTime().Format("15:04:05")
	if !m.IsConnected {
		return fmt.Sprintf("%s  offline  %s", at, poller.Summary(m))
	}
	return fmt.Sprintf("%s  %s  %s  %s  %d/5  %s", at, m.Operator, m.NetworkMode, m.SignalStrength, m.SignalQuality, poller.Summary(m))
}
