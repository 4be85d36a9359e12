package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/khaledhikmat/taskworker-imageclassifier/service/lgr"
)

type Status struct {
	Worker  string `json:"worker"`
	Version string `json:"version"`
	Library string `json:"library"`
}

func NewRouter(status Status) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"worker":  status.Worker,
			"version": status.Version,
			"library": status.Library,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// Serve runs the status server until ctx is cancelled.
func Serve(ctx context.Context, addr string, status Status) error {
	Register()

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(status),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lgr.Logger.Info("status server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
