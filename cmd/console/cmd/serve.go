package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-card-console/provider/fakeprovider"
	"github.com/jrsteele09/go-card-console/server"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	port         string
	demoProvider bool
	demoAddr     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the console over HTTP",
	Long: `Serves the guarded console views, the login and logout endpoints and the
metrics endpoint.

With --demo-provider an in-process identity provider is started and used as
the API, seeded with "admin"/"admin123" and "jane"/"password123".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port != "" {
			cfg.Port = port
		}
		if cfg.Port != "" && cfg.Port[0] != ':' {
			cfg.Port = ":" + cfg.Port
		}
		return run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	serveCmd.Flags().BoolVar(&demoProvider, "demo-provider", false, "Run an in-process identity provider with demo users")
	serveCmd.Flags().StringVar(&demoAddr, "demo-addr", "127.0.0.1:9000", "Listen address of the demo identity provider")
}

func run(ctx context.Context) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(cfg.GetAppName())

	var servers []*http.Server
	if demoProvider {
		idp, err := startDemoProvider()
		if err != nil {
			return err
		}
		servers = append(servers, idp)
	}

	console, err := openConsole(cfg)
	if err != nil {
		return err
	}
	handler, err := server.New(cfg, console)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: cfg.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	servers = append(servers, srv)
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(srv) }()

	select {
	case err := <-errs:
		returnError = err
	case <-waitForStopSignal(ctx):
	}
	for _, s := range servers {
		if err := shutdown(s); err != nil && returnError == nil {
			returnError = err
		}
	}
	log.Info().Msg("Server stopped")
	return returnError
}

func startDemoProvider() (*http.Server, error) {
	idp := fakeprovider.New()
	if err := idp.SeedDemoUsers(); err != nil {
		return nil, errors.Wrap(err, "failed to seed demo users")
	}
	listener, err := net.Listen("tcp", demoAddr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start demo identity provider")
	}
	cfg.APIBaseURL = "http://" + listener.Addr().String()

	srv := &http.Server{Handler: idp, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Err(err).Msg("demo identity provider stopped")
		}
	}()
	log.Info().Str("url", cfg.APIBaseURL).Msg("demo identity provider listening")
	return srv, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server.ListenAndServe")
	}
	return nil
}

func waitForStopSignal(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(stop)
		select {
		case <-stop:
		case <-ctx.Done():
		}
		close(stopped)
	}()
	return stopped
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
