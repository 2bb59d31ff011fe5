package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/sessiontrace/internal/buildinfo"
	"github.com/offlinefirst/sessiontrace/pkg/collector"
	"github.com/offlinefirst/sessiontrace/pkg/screen"
)

var (
	recordName     string
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Start a recording session and run until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		col, err := collector.New(collector.Options{
			Config:     cfg,
			Store:      store,
			Logger:     logger,
			AppVersion: buildinfo.Version(),
		})
		if err != nil {
			return err
		}

		sess, err := col.Start(recordName)
		if err != nil {
			return err
		}
		fmt.Printf("Recording session %s (%s). Press Ctrl-C to stop.\n", sess.Name(), sess.ID())

		signals := make(chan os.Signal, 2)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signals)

		var timeout <-chan time.Time
		if recordDuration > 0 {
			timer := time.NewTimer(recordDuration)
			defer timer.Stop()
			timeout = timer.C
		}

		select {
		case sig := <-signals:
			logger.Info("shutdown signal received", "signal", sig.String())
		case <-timeout:
			logger.Info("recording duration elapsed", "duration", recordDuration.String())
		}

		// A second signal while finalization is in flight abandons the
		// graceful path: wipe any frame spools so a later start never
		// inherits a partial one.
		stopDone := make(chan error, 1)
		go func() { stopDone <- col.Stop() }()
		select {
		case err := <-stopDone:
			if err != nil {
				return err
			}
		case sig := <-signals:
			logger.Warn("second signal during finalization, aborting", "signal", sig.String())
			screen.EmergencyCleanup(logger)
			os.Exit(1)
		}

		fmt.Printf("Session saved to %s\n", sess.Layout().Root)
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordName, "name", "", "session name (default session_<timestamp>)")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "stop automatically after this duration")
	rootCmd.AddCommand(recordCmd)
}
