// Package cli реализует команды engagement-workflow.
//
// # Обзор
//
// Корневая команда выполняет workflow один раз. Подкоманды:
//   - schedule — запуск по cron-расписанию и HTTP API состояния (internal/api)
//   - history  — список записанных runs (нужен history.database_url)
//
// # Ключевые компоненты
//
// ## App
//
// Зависимости команд: вывод, логгер, Connector SharePoint и внешние
// обработчики. По умолчанию строятся из конфигурации; тесты подменяют
// их через Option.
//
//	root := cli.NewRootCmd(version)
//	err := root.ExecuteContext(ctx)
//	os.Exit(cli.ExitCode(err))
//
// ## runtime
//
// Собирается из конфигурации перед запуском: Orchestrator, метрики,
// история в PostgreSQL и публикация событий в RabbitMQ.
// Недоступные история и события логируются и отключаются.
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения — в stderr.
//
// # Коды выхода
//
//	0 — run завершён (CLEANED_UP)
//	1 — ошибка конфигурации или шага
//	2 — отчёт доставлен, уведомление не отправлено (PARTIAL)
package cli
