// Package server serves the podcast feed and the audiobooks it points at.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/narrator/internal/audio"
	"github.com/book-expert/narrator/internal/feed"
	"github.com/book-expert/narrator/internal/fsutil"
	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	rebuildOps        = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
)

// ErrWatcherClosed is returned when the fsnotify channels close unexpectedly.
var ErrWatcherClosed = errors.New("directory watcher closed")

// Server serves the feed of one audiobook directory.
type Server struct {
	dir    string
	opts   feed.Options
	log    *logger.Logger
	engine *gin.Engine

	mu       sync.RWMutex
	document []byte
}

// New creates a Server over dir and builds the feed once.
func New(dir string, opts feed.Options, log *logger.Logger) (*Server, error) {
	server := &Server{dir: dir, opts: opts, log: log}

	err := server.Refresh()
	if err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), server.accessLog())

	for _, route := range []string{"/", "/feed", "/feed.xml"} {
		engine.GET(route, server.serveFeed)
	}

	engine.GET("/audio/:name", server.serveAudio)

	server.engine = engine

	return server, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Refresh rescans the directory and rewrites the feed file.
func (s *Server) Refresh() error {
	path, count, err := feed.Write(s.dir, s.opts)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read feed %s: %w", path, err)
	}

	s.mu.Lock()
	s.document = data
	s.mu.Unlock()

	s.log.Info("Feed %s rebuilt with %d episodes", path, count)

	return nil
}

// Watch rebuilds the feed whenever an audiobook in the directory is created,
// rewritten, removed or renamed. It returns when ctx is done.
func (s *Server) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	err = watcher.Add(s.dir)
	if err != nil {
		return fmt.Errorf("add watch path: %w", err)
	}

	s.log.Info("Watching %s for audiobooks", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return ErrWatcherClosed
			}

			if event.Op&rebuildOps == 0 {
				continue
			}

			if !fsutil.IsAudiobookFile(event.Name) {
				continue
			}

			s.log.Info("Audiobook change detected: %s", event)

			refreshErr := s.Refresh()
			if refreshErr != nil {
				s.log.Error("Failed to rebuild feed: %v", refreshErr)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return ErrWatcherClosed
			}

			s.log.Error("Watcher error: %v", watchErr)
		}
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errChan := make(chan error, 1)

	go func() {
		errChan <- httpServer.ListenAndServe()
	}()

	s.log.System("Serving podcast feed at http://%s/feed", addr)

	select {
	case err := <-errChan:
		return fmt.Errorf("feed server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down feed server: %w", err)
	}

	return nil
}

func (s *Server) serveFeed(c *gin.Context) {
	s.mu.RLock()
	document := s.document
	s.mu.RUnlock()

	c.Data(http.StatusOK, feed.ContentType+"; charset=utf-8", document)
}

func (s *Server) serveAudio(c *gin.Context) {
	name := c.Param("name")

	if name != filepath.Base(name) || !fsutil.IsAudiobookFile(name) {
		c.String(http.StatusNotFound, "File not found")

		return
	}

	path := filepath.Join(s.dir, name)

	_, err := fsutil.RequireRegularFile(path)
	if err != nil {
		c.String(http.StatusNotFound, "File not found")

		return
	}

	format, err := audio.FormatOf(name)
	if err != nil {
		c.String(http.StatusNotFound, "File not found")

		return
	}

	c.Header("Content-Type", format.MIMEType())
	c.File(path)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		c.Next()

		s.log.Info("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(started))
	}
}
