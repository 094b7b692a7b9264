package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/engagement-workflow/internal/domain"
)

// TimestampLayout — формат метки времени в именах артефактов.
const TimestampLayout = "20060102_150405"

// Role — роль входного файла.
type Role string

// Роли в порядке скачивания.
const (
	RoleWIPs  Role = "wips"
	RoleBills Role = "bills"
	RoleBoB   Role = "bob"
)

// RunContext — состояние одного run.
//
// Создаётся один раз на запуск и явно передаётся в каждый шаг.
// Все артефакты run используют одну метку времени Timestamp.
type RunContext struct {
	// ID — идентификатор run (совпадает с Run.ID).
	ID uuid.UUID

	// WorkDir — рабочая директория со всеми локальными файлами run.
	WorkDir string

	// Timestamp — метка времени, фиксированная при создании.
	Timestamp string

	// StartedAt — время создания RunContext.
	StartedAt time.Time

	// Files — скачанные файлы по ролям. Роль без шаблона отсутствует в map.
	Files map[Role]string

	// Session — сессия SharePoint; nil до Authenticate.
	Session Session

	// Run — запись о run с состоянием и шагами.
	Run *domain.Run
}

// newRunContext создаёт рабочую директорию и RunContext.
func newRunContext(workDir string, now time.Time) (*RunContext, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}

	ts := now.Format(TimestampLayout)
	run := domain.NewRun(ts, workDir, now)

	return &RunContext{
		ID:        run.ID,
		WorkDir:   workDir,
		Timestamp: ts,
		StartedAt: now,
		Files:     make(map[Role]string),
		Run:       run,
	}, nil
}

// File возвращает путь файла роли.
func (rc *RunContext) File(role Role) (string, bool) {
	path, ok := rc.Files[role]
	return path, ok && path != ""
}

// artifact возвращает путь "<prefix>_<timestamp>.xlsx" в рабочей директории.
func (rc *RunContext) artifact(prefix string) string {
	return filepath.Join(rc.WorkDir, fmt.Sprintf("%s_%s.xlsx", prefix, rc.Timestamp))
}

// BillsPreparedPath — подготовленный Bills.
func (rc *RunContext) BillsPreparedPath() string {
	return rc.artifact("Bills_prepared")
}

// BoBPreparedPath — подготовленный BoB.
func (rc *RunContext) BoBPreparedPath() string {
	return rc.artifact("BoB_prepared")
}

// BoBTempPath — временная копия BoB на время анализа.
func (rc *RunContext) BoBTempPath() string {
	return rc.artifact("BoB_temp")
}

// OutputPath — итоговый отчёт.
func (rc *RunContext) OutputPath(prefix string) string {
	return rc.artifact(prefix)
}
