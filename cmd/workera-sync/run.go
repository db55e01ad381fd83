package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a headless sync session",
	Long: `Start a session, restore the last active workspace and board, and keep
the local copy in sync until interrupted. Every store change is logged at
debug level.`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runSession(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	e := s.engine
	logger.WithFields(log.Fields{
		"user":      e.UserID(),
		"workspace": e.ActiveWorkspace(),
		"board":     e.ActiveBoard(),
	}).Info("session started")

	changes, cancel := e.Changes(256)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			flushCtx, done := context.WithTimeout(context.Background(), cfg.Remote.Timeout())
			defer done()
			if err := e.Flush(flushCtx); err != nil {
				logger.WithError(err).Warn("pending writes not flushed")
			}
			logger.Info("session stopped")
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			logger.WithFields(log.Fields{
				"kind":    c.Kind,
				"id":      c.EntityID,
				"board":   c.BoardID,
				"removed": c.Removed,
			}).Debug("change")
		}
	}
}
