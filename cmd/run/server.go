package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/steplock/steplock/config"
	"github.com/steplock/steplock/session"
)

var (
	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Start server",
		Args:  cobra.NoArgs,
		RunE:  runServer,
	}
)

func runServer(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "server-cmd").Logger()

	logger.Info().Str("config", configFile).Msg("loading configuration")
	cfg, err := config.LoadServerConfig(configFile)
	if err != nil {
		return err
	}

	handler := &demoHandler{logger: logger}
	physics := &demoPhysics{}

	sess, err := session.Serve(cfg, handler, physics)
	if err != nil {
		return err
	}
	handler.sess = sess

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		driveHost(ctx, sess, logger)
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	case <-done:
	}

	sess.Close()
	<-done

	logger.Info().
		Stringer("exit_code", sess.ExitCode()).
		Uint64("frames", sess.Frame()).
		Uint64("physics_steps", physics.steps).
		Msg("server stopped")
	return nil
}
