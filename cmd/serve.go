package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adda-Baaj/feedsmith/internal/server"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port int
		dir  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generated feeds over HTTP",
		Long:  "Serve the feed directory with permissive CORS headers so feed readers and browser previews can load the files. Exits with status 2 when the port is taken.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.load()
			if err != nil {
				return err
			}
			defer rt.close()

			if cmd.Flags().Changed("port") {
				rt.cfg.Server.Port = port
			}
			if cmd.Flags().Changed("dir") {
				rt.cfg.Server.Dir = dir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Serving %s at http://localhost:%d/ (Ctrl+C to stop)\n", rt.cfg.Server.Dir, rt.cfg.Server.Port)
			err = server.New(rt.cfg.Server.Dir, rt.cfg.Server.Port, rt.log).Serve(ctx)
			switch {
			case errors.Is(err, server.ErrPortInUse):
				return withExitCode(exitPortInUse, fmt.Errorf("port %d is already in use", rt.cfg.Server.Port))
			case err != nil:
				return err
			}
			fmt.Fprintln(out, "Server stopped.")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 8000, "port to listen on (overrides server.port)")
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to serve (overrides server.dir)")
	return cmd
}
