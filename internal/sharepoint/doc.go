// Package sharepoint — клиент SharePoint поверх Microsoft Graph.
//
// Структура:
//   - config.go  — конфигурация сессии (sharepoint_config.json)
//   - auth.go    — аутентификация: app-only (client credentials) и delegated (device code)
//   - tokens.go  — кэш delegated-токенов в системном keychain
//   - session.go — HTTP-слой: rate limit, retry 429/503/504, разбор ошибок Graph
//   - files.go   — поиск последнего файла по шаблону, скачивание, загрузка, share link
//   - mail.go    — уведомление команды через sendMail
//
// Использование:
//
//	client := sharepoint.NewClient(cfg, logger)
//	session, err := client.AuthenticateDelegated(ctx)
//	path, err := session.DownloadLatestFile(ctx, "Finance", "Reports/Inputs", "WIPs*.xlsx", "./work", "Documents")
package sharepoint
