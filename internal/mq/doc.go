// Package mq публикует события workflow в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, publisher confirms, graceful shutdown)
//   - topology.go   — объявление exchange, queue, binding
//   - publisher.go  — публикация событий
//
// Типы сообщений:
//   - run.finished — run завершился (CLEANED_UP, PARTIAL или FAILED)
//
// Exchanges:
//   - engagement.events — события workflow (topic)
package mq
