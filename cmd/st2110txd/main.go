// Command st2110txd is a software-only example sender: it reads a YAML
// session profile (internal/config), brings up the schedulers and TX
// sessions it describes, and feeds each one a synthetic pattern
// generator until interrupted. It exists to exercise the public
// internal/st2110 API end to end, not as a production broadcast tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ehrlich-b/st2110go/internal/config"
	"github.com/ehrlich-b/st2110go/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFile    string
)

func main() {
	root := &cobra.Command{
		Use:   "st2110txd",
		Short: "st2110go example sender",
		Long:  "Brings up schedulers and TX sessions from a YAML profile and feeds them synthetic media until interrupted.",
		RunE:  runMain,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "st2110txd.yaml", "session profile path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")

	root.AddCommand(validateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "st2110txd: %v\n", err)
		os.Exit(1)
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse the profile and report what it would bring up, without sending anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("%d scheduler(s), %d session(s):\n", len(profile.Schedulers), len(profile.Sessions))
			for _, sc := range profile.Sessions {
				fmt.Printf("  %-16s kind=%-5s scheduler=%s dest=%s:%d\n", sc.Name, sc.Kind, sc.Scheduler, sc.Destination.IP, sc.Destination.Port)
			}
			return nil
		},
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	if err := logger.Init(logLevel, logFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	profile, err := config.Load(configPath)
	if err != nil {
		return err
	}

	d, err := newDaemon(profile)
	if err != nil {
		return fmt.Errorf("bring up profile: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d.StartStats(ctx, 5*time.Second)
	logger.Log.Info("st2110txd running", "sessions", len(d.handles), "schedulers", len(d.scheds))

	<-ctx.Done()
	logger.Log.Info("shutting down")
	d.Close()
	return nil
}
