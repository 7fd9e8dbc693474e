package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/book-expert/narrator/internal/config"
	"github.com/book-expert/narrator/internal/feed"
	"github.com/book-expert/narrator/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const (
	flagPort  = "port"
	flagWatch = "watch"
)

func feedOptions(cfg *config.Config) feed.Options {
	return feed.Options{
		Title:       cfg.Feed.Title,
		Description: cfg.Feed.Description,
		Author:      cfg.Feed.Author,
		Language:    cfg.Feed.Language,
		BaseURL:     cfg.Feed.BaseURL,
		BuildTime:   time.Now(),
	}
}

// audioDir returns the directory argument, or the configured one.
func (a *app) audioDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}

	return a.cfg.Server.AudioDir
}

func newFeedCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "feed [dir]",
		Short: "Write a podcast RSS feed for the audiobooks in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path, count, err := feed.Write(a.audioDir(args), feedOptions(a.cfg))
			if err != nil {
				return err
			}

			a.log.Info("Wrote feed %s with %d episodes", path, count)
			a.printf("Wrote %s with %d episodes\n", path, count)

			return nil
		},
	}
}

func newServeCommand(a *app) *cobra.Command {
	var (
		port  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve [dir]",
		Short: "Serve the podcast feed and audiobooks over HTTP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed(flagPort) {
				a.cfg.Server.Port = port
			}

			if cmd.Flags().Changed(flagWatch) {
				a.cfg.Server.Watch = watch
			}

			err := a.cfg.Validate()
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)

			srv, err := server.New(a.audioDir(args), feedOptions(a.cfg), a.log)
			if err != nil {
				return err
			}

			return a.serve(cmd.Context(), srv)
		},
	}

	cmd.Flags().IntVar(&port, flagPort, 0, "listen port (default from config)")
	cmd.Flags().BoolVar(&watch, flagWatch, false, "rebuild the feed when audiobooks change")

	return cmd
}

func (a *app) serve(ctx context.Context, srv *server.Server) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchErr := make(chan error, 1)

	if a.cfg.Server.Watch {
		go func() {
			watchErr <- srv.Watch(ctx)
		}()
	} else {
		close(watchErr)
	}

	addr := net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port))
	a.printf("Serving %s/feed on %s\n", a.cfg.Feed.BaseURL, addr)

	serveErr := srv.ListenAndServe(ctx, addr)

	cancel()

	err := <-watchErr
	if err != nil && !errors.Is(err, context.Canceled) {
		serveErr = errors.Join(serveErr, fmt.Errorf("feed watcher: %w", err))
	}

	return serveErr
}
