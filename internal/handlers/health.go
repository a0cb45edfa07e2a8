package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"go-echo-foodgram/internal/database"
)

type HealthHandler struct {
	checkDB    func(ctx context.Context) error
	checkRedis func(ctx context.Context) error
	close      func() error
}

// NewHealthHandler keeps one queue inspector for the life of the process;
// Close releases its Redis connection.
func NewHealthHandler(db *gorm.DB, redisAddr string) *HealthHandler {
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr})
	return &HealthHandler{
		checkDB: func(context.Context) error {
			return database.CheckHealth(db)
		},
		checkRedis: func(ctx context.Context) error {
			return pingQueues(ctx, inspector)
		},
		close: inspector.Close,
	}
}

func (h *HealthHandler) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

func (h *HealthHandler) Check(c echo.Context) error {
	ctx := c.Request().Context()

	dbStatus := "healthy"
	if err := h.checkDB(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if err := h.checkRedis(ctx); err != nil {
		redisStatus = "unhealthy"
	}

	overallStatus := "healthy"
	statusCode := http.StatusOK
	if dbStatus != "healthy" || redisStatus != "healthy" {
		overallStatus = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, HealthResponse{
		Status:   overallStatus,
		Database: dbStatus,
		Redis:    redisStatus,
	})
}

func pingQueues(ctx context.Context, inspector *asynq.Inspector) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := inspector.Queues()
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
