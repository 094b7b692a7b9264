package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/engagement-workflow/internal/domain"
	"github.com/shaiso/engagement-workflow/internal/repo"
)

// RunReader читает историю runs.
type RunReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
}

// ScheduleSource отдаёт текущее состояние расписания.
type ScheduleSource interface {
	Snapshot() domain.Schedule
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runs     RunReader
	schedule ScheduleSource
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	// Runs — nil, если история не настроена.
	Runs     RunReader
	Schedule ScheduleSource
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Handler{
		runs:     cfg.Runs,
		schedule: cfg.Schedule,
		gatherer: gatherer,
		logger:   logger,
	}
}
