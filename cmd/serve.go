package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/lotas/tabforest/internal/applog"
	"github.com/lotas/tabforest/internal/server"
	"github.com/lotas/tabforest/internal/shell"
	"github.com/spf13/cobra"
)

const defaultPort = 19191

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket bridge the browser shell connects to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := resolvePort(cmd)
		if err != nil {
			return err
		}
		m, err := openModel()
		if err != nil {
			return err
		}
		defer m.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(port)
		sh := shell.New(m, srv)
		defer sh.Close()

		trees, err := sh.Start()
		if err != nil {
			return err
		}
		applog.Info("serve.start", "port", port, "trees", len(trees))
		fmt.Fprintf(cmd.ErrOrStderr(), "Listening on :%d with %d open trees\n", port, len(trees))

		errc := make(chan error, 1)
		go func() {
			errc <- srv.ListenAndServe(ctx)
			stop()
		}()

		// The shell owns the Model; it runs here until the context ends.
		err = sh.Run(ctx, srv.Messages())
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		stop()
		if serr := <-errc; !errors.Is(serr, http.ErrServerClosed) {
			err = errors.Join(err, serr)
		}
		applog.Info("serve.stop")
		return err
	},
}

// resolvePort picks the port: flag if given, then TABFOREST_PORT, then the
// default.
func resolvePort(cmd *cobra.Command) (int, error) {
	if cmd.Flags().Changed("port") {
		return servePort, nil
	}
	if env := os.Getenv("TABFOREST_PORT"); env != "" {
		p, err := strconv.Atoi(env)
		if err != nil {
			return 0, fmt.Errorf("TABFOREST_PORT: %w", err)
		}
		return p, nil
	}
	return servePort, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", defaultPort, "WebSocket port (env TABFOREST_PORT)")
	rootCmd.AddCommand(serveCmd)
}
