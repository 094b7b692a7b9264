package config

import "errors"

// Ошибки загрузки конфигурации.
var (
	// ErrConfigNotFound — файл конфигурации не существует.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrConfigParse — содержимое не является валидным JSON/YAML.
	ErrConfigParse = errors.New("configuration parse error")

	// ErrConfigInvalid — конфигурация не прошла валидацию.
	ErrConfigInvalid = errors.New("invalid configuration")
)
