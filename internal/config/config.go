// Package config загружает конфигурацию workflow.
//
// Конфигурация читается один раз при старте и не меняется до конца run.
// Поддерживаются JSON (по умолчанию, workflow_config.json) и YAML (.yaml/.yml).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Значения по умолчанию.
const (
	DefaultConfigFile       = "workflow_config.json"
	DefaultWorkDirectory    = "./work"
	DefaultSharePointConfig = "sharepoint_config.json"
	DefaultLibraryName      = "Documents"
	DefaultInvoiceMonthFrom = "2025-08"
	DefaultBillings         = "17M"
	DefaultDetailSheet      = "Detail"
	DefaultTargetMarginPct  = 28.0
	DefaultOutputPrefix     = "Engagement_Summary_FY26"
	DefaultMetricsJob       = "engagement_workflow"
	DefaultCron             = "0 6 * * MON"
	DefaultTimezone         = "UTC"
	DefaultListenAddr       = ":8085"
)

// AuthType — стратегия аутентификации в SharePoint.
type AuthType string

const (
	AuthTypeApp       AuthType = "app"
	AuthTypeDelegated AuthType = "delegated"
)

// Config — конфигурация workflow.
type Config struct {
	WorkDirectory        string              `json:"work_directory" yaml:"work_directory"`
	SharePointConfig     string              `json:"sharepoint_config" yaml:"sharepoint_config"`
	AuthType             AuthType            `json:"auth_type" yaml:"auth_type"`
	Downloads            DownloadsConfig     `json:"downloads" yaml:"downloads"`
	Uploads              UploadsConfig       `json:"uploads" yaml:"uploads"`
	Analysis             AnalysisConfig      `json:"analysis" yaml:"analysis"`
	Notification         *NotificationConfig `json:"notification,omitempty" yaml:"notification,omitempty"`
	CleanupWorkDirectory bool                `json:"cleanup_work_directory" yaml:"cleanup_work_directory"`

	Collaborators CollaboratorsConfig `json:"collaborators" yaml:"collaborators"`
	History       HistoryConfig       `json:"history" yaml:"history"`
	Events        EventsConfig        `json:"events" yaml:"events"`
	Metrics       MetricsConfig       `json:"metrics" yaml:"metrics"`
	Schedule      ScheduleConfig      `json:"schedule" yaml:"schedule"`
}

// Location — папка в библиотеке документов сайта SharePoint.
type Location struct {
	SiteName    string `json:"site_name" yaml:"site_name"`
	FolderPath  string `json:"folder_path" yaml:"folder_path"`
	LibraryName string `json:"library_name" yaml:"library_name"`
}

// DownloadsConfig — откуда брать входные файлы.
// Пустой шаблон означает, что роль не запрашивается.
type DownloadsConfig struct {
	Location     `yaml:",inline"`
	WIPsPattern  string `json:"wips_pattern,omitempty" yaml:"wips_pattern,omitempty"`
	BillsPattern string `json:"bills_pattern,omitempty" yaml:"bills_pattern,omitempty"`
	BoBPattern   string `json:"bob_pattern,omitempty" yaml:"bob_pattern,omitempty"`
}

// UploadsConfig — куда загружать отчёт.
type UploadsConfig struct {
	Location `yaml:",inline"`
}

// AnalysisConfig — параметры подготовки и анализа.
type AnalysisConfig struct {
	InvoiceMonthFrom string `json:"invoice_month_from" yaml:"invoice_month_from"`
	DetailSheet      string `json:"detail_sheet" yaml:"detail_sheet"`

	// HeaderRowIndex — nil, если строка заголовка определяется анализом.
	HeaderRowIndex  *int    `json:"header_row_index,omitempty" yaml:"header_row_index,omitempty"`
	FYStart         string  `json:"fy_start" yaml:"fy_start"`
	FYEnd           string  `json:"fy_end" yaml:"fy_end"`

	// TargetMarginPct — nil, если не задан; явный 0 сохраняется.
	TargetMarginPct *float64 `json:"target_margin_pct,omitempty" yaml:"target_margin_pct,omitempty"`

	// Billings — значение по умолчанию, если подготовка Bills его не вычислила.
	Billings      Scalar `json:"billings" yaml:"billings"`
	PrintMarkdown bool   `json:"print_markdown" yaml:"print_markdown"`
	OutputPrefix  string `json:"output_prefix" yaml:"output_prefix"`
}

// NotificationConfig — уведомление команды. Шаблоны поддерживают {date}.
type NotificationConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Recipients []string `json:"recipients" yaml:"recipients"`
	Subject    string   `json:"subject" yaml:"subject"`
	Body       string   `json:"body" yaml:"body"`
}

// CollaboratorsConfig — команды внешних обработчиков.
type CollaboratorsConfig struct {
	BillsCommand    []string `json:"bills_command" yaml:"bills_command"`
	BoBCommand      []string `json:"bob_command" yaml:"bob_command"`
	AnalysisCommand []string `json:"analysis_command" yaml:"analysis_command"`
	TimeoutSec      int      `json:"timeout_sec" yaml:"timeout_sec"`
}

// HistoryConfig — история запусков в PostgreSQL. Пустой URL отключает историю.
type HistoryConfig struct {
	DatabaseURL string `json:"database_url" yaml:"database_url"`
}

// EventsConfig — события run.finished в RabbitMQ. Пустой URL отключает события.
type EventsConfig struct {
	AMQPURL string `json:"amqp_url" yaml:"amqp_url"`
}

// MetricsConfig — отправка метрик в Pushgateway. Пустой URL отключает отправку.
type MetricsConfig struct {
	PushgatewayURL string `json:"pushgateway_url" yaml:"pushgateway_url"`
	Job            string `json:"job" yaml:"job"`
}

// ScheduleConfig — режим schedule.
type ScheduleConfig struct {
	Cron       string `json:"cron" yaml:"cron"`
	Timezone   string `json:"timezone" yaml:"timezone"`
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// Load читает конфигурацию из файла.
//
// Возвращает ErrConfigNotFound, если файла нет (проверяется до чтения),
// ErrConfigParse для невалидного содержимого и ErrConfigInvalid после валидации.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("stat config: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Format — формат файла конфигурации.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse декодирует конфигурацию и применяет значения по умолчанию.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config

	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults заполняет незаданные поля.
func (c *Config) ApplyDefaults() {
	if c.WorkDirectory == "" {
		c.WorkDirectory = DefaultWorkDirectory
	}
	if c.SharePointConfig == "" {
		c.SharePointConfig = DefaultSharePointConfig
	}
	if c.AuthType == "" {
		c.AuthType = AuthTypeDelegated
	}
	if c.Downloads.LibraryName == "" {
		c.Downloads.LibraryName = DefaultLibraryName
	}
	if c.Uploads.LibraryName == "" {
		c.Uploads.LibraryName = DefaultLibraryName
	}

	a := &c.Analysis
	if a.InvoiceMonthFrom == "" {
		a.InvoiceMonthFrom = DefaultInvoiceMonthFrom
	}
	if a.DetailSheet == "" {
		a.DetailSheet = DefaultDetailSheet
	}
	if a.TargetMarginPct == nil {
		margin := DefaultTargetMarginPct
		a.TargetMarginPct = &margin
	}
	if a.Billings == "" {
		a.Billings = DefaultBillings
	}
	if a.OutputPrefix == "" {
		a.OutputPrefix = DefaultOutputPrefix
	}

	if len(c.Collaborators.BillsCommand) == 0 {
		c.Collaborators.BillsCommand = []string{"python", "prepare_bills.py"}
	}
	if len(c.Collaborators.BoBCommand) == 0 {
		c.Collaborators.BoBCommand = []string{"python", "prepare_bob.py"}
	}
	if len(c.Collaborators.AnalysisCommand) == 0 {
		c.Collaborators.AnalysisCommand = []string{"python", "fy_engagement_analysis.py"}
	}

	if c.History.DatabaseURL == "" {
		c.History.DatabaseURL = os.Getenv("DB_URL")
	}
	if c.Events.AMQPURL == "" {
		c.Events.AMQPURL = os.Getenv("RABBITMQ_URL")
	}
	if c.Metrics.PushgatewayURL == "" {
		c.Metrics.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = DefaultMetricsJob
	}

	if c.Schedule.Cron == "" {
		c.Schedule.Cron = DefaultCron
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = DefaultTimezone
	}
	if c.Schedule.ListenAddr == "" {
		c.Schedule.ListenAddr = DefaultListenAddr
	}
}

// Validate проверяет обязательные поля.
//
// Отсутствующий шаблон любой из трёх ролей считается ошибкой конфигурации:
// все три файла нужны анализу.
func (c *Config) Validate() error {
	var problems []string

	switch c.AuthType {
	case AuthTypeApp, AuthTypeDelegated:
	default:
		problems = append(problems, fmt.Sprintf("auth_type must be %q or %q, got %q", AuthTypeApp, AuthTypeDelegated, c.AuthType))
	}

	if c.Downloads.SiteName == "" {
		problems = append(problems, "downloads.site_name is required")
	}
	if c.Downloads.FolderPath == "" {
		problems = append(problems, "downloads.folder_path is required")
	}
	if c.Downloads.WIPsPattern == "" {
		problems = append(problems, "downloads.wips_pattern is required")
	}
	if c.Downloads.BillsPattern == "" {
		problems = append(problems, "downloads.bills_pattern is required")
	}
	if c.Downloads.BoBPattern == "" {
		problems = append(problems, "downloads.bob_pattern is required")
	}
	if c.Uploads.SiteName == "" {
		problems = append(problems, "uploads.site_name is required")
	}
	if c.Uploads.FolderPath == "" {
		problems = append(problems, "uploads.folder_path is required")
	}
	if c.Analysis.FYStart == "" {
		problems = append(problems, "analysis.fy_start is required")
	}
	if c.Analysis.FYEnd == "" {
		problems = append(problems, "analysis.fy_end is required")
	}

	if n := c.Notification; n != nil && n.Enabled {
		if len(n.Recipients) == 0 {
			problems = append(problems, "notification.recipients is required when notification is enabled")
		}
		if n.Subject == "" {
			problems = append(problems, "notification.subject is required when notification is enabled")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// TargetMargin возвращает целевую маржу; без значения — DefaultTargetMarginPct.
func (a AnalysisConfig) TargetMargin() float64 {
	if a.TargetMarginPct == nil {
		return DefaultTargetMarginPct
	}
	return *a.TargetMarginPct
}

// NotificationEnabled сообщает, нужно ли отправлять уведомление.
func (c *Config) NotificationEnabled() bool {
	return c.Notification != nil && c.Notification.Enabled
}
