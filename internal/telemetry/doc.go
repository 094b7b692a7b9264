// Package telemetry обеспечивает наблюдаемость workflow.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики run и шагов
//
// Batch-запуск отправляет метрики в Pushgateway после завершения run,
// режим schedule дополнительно отдаёт их на /metrics.
package telemetry
