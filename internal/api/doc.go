// Package api содержит HTTP API режима schedule.
//
// Структура:
//   - handler.go          — Handler с DI (история runs, расписание, метрики, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (response)
//   - run_handler.go      — обработчики для /runs
//   - schedule_handler.go — обработчики для /schedule и /healthz
//
// API только читает состояние: запуск workflow выполняет scheduler.
package api
