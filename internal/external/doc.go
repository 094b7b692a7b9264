// Package external вызывает внешние обработчики workflow.
//
// Подготовка Bills, подготовка BoB и сам анализ маржинальности живут
// в отдельных программах. Пакет запускает их как команды:
//
//	python prepare_bills.py --input IN --output OUT --invoice-month-from 2025-08
//	python prepare_bob.py --input IN --output OUT
//	python fy_engagement_analysis.py --input-file ... --output-file ...
//
// Подготовка Bills может сообщить вычисленное значение billings строкой
// "billings=<value>" в stdout.
package external
