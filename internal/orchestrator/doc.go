// Package orchestrator выполняет workflow анализа engagement.
//
// Orchestrator отвечает за:
//   - Аутентификацию в SharePoint
//   - Скачивание входных файлов (WIPs, Bills, BoB)
//   - Подготовку Bills и BoB внешними обработчиками
//   - Запуск анализа с накопленными путями и параметрами
//   - Загрузку отчёта и создание ссылки
//   - Уведомление команды и очистку рабочей директории
//
// Шаги выполняются строго последовательно. Ошибка шага прерывает run,
// кроме ошибки уведомления: отчёт уже доставлен, и run завершается в PARTIAL.
package orchestrator
