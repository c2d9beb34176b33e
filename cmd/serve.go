package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/medintel/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEngine("serve")
		if err != nil {
			return err
		}

		h := server.NewRouter(server.Deps{
			Years:        env.Years,
			Resolver:     env.Resolver,
			Reporter:     env.Analyzer,
			Cache:        env.Cache,
			Breakers:     env.Source.Breakers(),
			DefaultYears: env.Years.All(),
		}, server.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: time.Duration(cfg.Server.TimeoutSecs) * time.Second,
		})

		return server.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Server.Port), h)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
