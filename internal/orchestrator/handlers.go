package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaiso/engagement-workflow/internal/config"
	"github.com/shaiso/engagement-workflow/internal/domain"
	"github.com/shaiso/engagement-workflow/internal/external"
	"github.com/shaiso/engagement-workflow/internal/telemetry"
)

const (
	// linkTypeView — ссылка только на просмотр.
	linkTypeView = "view"

	// dateLayout — формат подстановки {date}.
	dateLayout = "2006-01-02"
)

// Authenticate получает сессию SharePoint по стратегии auth_type.
func (o *Orchestrator) Authenticate(ctx context.Context, rc *RunContext) error {
	logger := telemetry.FromContext(ctx)

	if o.connect == nil {
		return stepError(domain.StepAuthenticate, ErrAuth, errors.New("no connector configured"))
	}

	auth, err := o.connect(o.cfg.SharePointConfig)
	if err != nil {
		return stepError(domain.StepAuthenticate, ErrAuth, err)
	}

	var session Session
	if o.cfg.AuthType == config.AuthTypeApp {
		logger.Info("authenticating with SharePoint", "auth_type", config.AuthTypeApp)
		session, err = auth.AuthenticateAppOnly(ctx)
	} else {
		logger.Info("authenticating with SharePoint", "auth_type", config.AuthTypeDelegated)
		session, err = auth.AuthenticateDelegated(ctx)
	}
	if err != nil {
		return stepError(domain.StepAuthenticate, ErrAuth, err)
	}
	if session == nil {
		return stepError(domain.StepAuthenticate, ErrAuth, errors.New("no session returned"))
	}

	rc.Session = session
	rc.Run.Advance(domain.RunStatusAuthenticated)
	return nil
}

// DownloadInputs скачивает последний файл каждой роли, для которой задан шаблон.
// Порядок: wips, bills, bob. Роль без шаблона пропускается.
func (o *Orchestrator) DownloadInputs(ctx context.Context, rc *RunContext) error {
	logger := telemetry.FromContext(ctx)
	dl := o.cfg.Downloads

	if rc.Session == nil {
		return stepError(domain.StepDownload, ErrDownload, errors.New("not authenticated"))
	}

	library := libraryOrDefault(dl.LibraryName)
	roles := []struct {
		role    Role
		pattern string
	}{
		{RoleWIPs, dl.WIPsPattern},
		{RoleBills, dl.BillsPattern},
		{RoleBoB, dl.BoBPattern},
	}

	for _, r := range roles {
		if r.pattern == "" {
			logger.Warn("no pattern configured, skipping download", "role", r.role)
			continue
		}

		path, err := rc.Session.DownloadLatestFile(ctx, dl.SiteName, dl.FolderPath, r.pattern, rc.WorkDir, library)
		if err != nil {
			return stepError(domain.StepDownload, ErrDownload, fmt.Errorf("%s (%s): %w", r.role, r.pattern, err))
		}

		rc.Files[r.role] = path
		logger.Info("downloaded input", "role", r.role, "path", path)
	}

	rc.Run.Advance(domain.RunStatusDownloaded)
	return nil
}

// PrepareBills готовит Bills_prepared_<ts>.xlsx.
// Возвращает путь и вычисленное значение billings (nil, если не вычислено).
func (o *Orchestrator) PrepareBills(ctx context.Context, rc *RunContext) (string, *string, error) {
	input, ok := rc.File(RoleBills)
	if !ok {
		return "", nil, stepError(domain.StepPrepareBills, ErrMissingInput, errors.New(string(RoleBills)))
	}

	monthFrom := o.cfg.Analysis.InvoiceMonthFrom
	if monthFrom == "" {
		monthFrom = config.DefaultInvoiceMonthFrom
	}

	output := rc.BillsPreparedPath()
	billings, err := o.bills.PrepareBills(ctx, input, output, monthFrom)
	if err != nil {
		return "", nil, stepError(domain.StepPrepareBills, ErrPrepare, err)
	}

	attrs := []any{"output", output, "invoice_month_from", monthFrom}
	if billings != nil {
		attrs = append(attrs, "billings", *billings)
	}
	telemetry.FromContext(ctx).Info("bills prepared", attrs...)

	return output, billings, nil
}

// PrepareBoB готовит BoB_prepared_<ts>.xlsx.
func (o *Orchestrator) PrepareBoB(ctx context.Context, rc *RunContext) (string, error) {
	input, ok := rc.File(RoleBoB)
	if !ok {
		return "", stepError(domain.StepPrepareBoB, ErrMissingInput, errors.New(string(RoleBoB)))
	}

	output := rc.BoBPreparedPath()
	if err := o.bob.PrepareBoB(ctx, input, output); err != nil {
		return "", stepError(domain.StepPrepareBoB, ErrPrepare, err)
	}

	telemetry.FromContext(ctx).Info("bob prepared", "output", output)

	// BoB готовится после Bills: оба входа готовы.
	rc.Run.Advance(domain.RunStatusPrepared)
	return output, nil
}

// RunAnalysis запускает анализ и возвращает путь к отчёту.
//
// Анализ получает временную копию BoB: исходный подготовленный файл
// может быть заблокирован. Копия удаляется при любом исходе.
func (o *Orchestrator) RunAnalysis(ctx context.Context, rc *RunContext, billsPrepared, bobPrepared string, billings *string) (string, error) {
	logger := telemetry.FromContext(ctx)
	a := o.cfg.Analysis

	wips, ok := rc.File(RoleWIPs)
	if !ok {
		return "", stepError(domain.StepAnalyze, ErrMissingInput, errors.New(string(RoleWIPs)))
	}

	tempBoB := rc.BoBTempPath()
	defer func() {
		if err := os.Remove(tempBoB); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to remove temporary BoB copy", "path", tempBoB, "error", err)
		}
	}()

	if err := copyFile(bobPrepared, tempBoB); err != nil {
		return "", stepError(domain.StepAnalyze, ErrAnalysis, err)
	}

	prefix := a.OutputPrefix
	if prefix == "" {
		prefix = config.DefaultOutputPrefix
	}

	req := external.AnalysisRequest{
		InputFile:       wips,
		DetailSheet:     stringOrDefault(a.DetailSheet, config.DefaultDetailSheet),
		HeaderRowIndex:  a.HeaderRowIndex,
		FYStart:         a.FYStart,
		FYEnd:           a.FYEnd,
		Billings:        resolveBillings(billings, string(a.Billings)),
		TargetMarginPct: a.TargetMargin(),
		OutputFile:      rc.OutputPath(prefix),
		BillsFile:       billsPrepared,
		BoBFile:         tempBoB,
		PrintMarkdown:   a.PrintMarkdown,
	}

	logger.Info("running engagement analysis",
		"input", req.InputFile,
		"billings", req.Billings,
		"fy_start", req.FYStart,
		"fy_end", req.FYEnd,
		"target_margin_pct", req.TargetMarginPct,
	)

	if err := o.analyzer.Analyze(ctx, req); err != nil {
		return "", stepError(domain.StepAnalyze, ErrAnalysis, err)
	}

	rc.Run.Outcome.OutputPath = req.OutputFile
	rc.Run.Advance(domain.RunStatusAnalyzed)
	logger.Info("analysis complete", "output", req.OutputFile)
	return req.OutputFile, nil
}

// UploadResults загружает отчёт с перезаписью и создаёт view-ссылку.
func (o *Orchestrator) UploadResults(ctx context.Context, rc *RunContext, outputPath string) (string, error) {
	logger := telemetry.FromContext(ctx)
	up := o.cfg.Uploads
	library := libraryOrDefault(up.LibraryName)

	if rc.Session == nil {
		return "", stepError(domain.StepUpload, ErrUpload, errors.New("not authenticated"))
	}

	if _, err := rc.Session.UploadFile(ctx, up.SiteName, up.FolderPath, outputPath, library, true); err != nil {
		return "", stepError(domain.StepUpload, ErrUpload, err)
	}
	rc.Run.Outcome.ArtifactDelivered = true
	logger.Info("report uploaded", "site", up.SiteName, "folder", up.FolderPath)

	link, err := rc.Session.CreateShareLink(ctx, up.SiteName, up.FolderPath, filepath.Base(outputPath), library, linkTypeView)
	if err != nil {
		return "", stepError(domain.StepUpload, ErrLink, err)
	}

	rc.Run.Outcome.ShareLink = link
	rc.Run.Advance(domain.RunStatusUploaded)
	logger.Info("share link created", "share_link", link)
	return link, nil
}

// NotifyTeam отправляет уведомление со ссылкой на отчёт.
// Без секции notification или при enabled=false ничего не отправляет.
func (o *Orchestrator) NotifyTeam(ctx context.Context, rc *RunContext, shareLink string) error {
	logger := telemetry.FromContext(ctx)

	if !o.cfg.NotificationEnabled() {
		logger.Info("notification disabled, skipping")
		rc.Run.Outcome.NotificationSkipped = true
		rc.Run.Advance(domain.RunStatusNotified)
		return nil
	}

	if rc.Session == nil {
		return stepError(domain.StepNotify, ErrNotification, errors.New("not authenticated"))
	}

	n := o.cfg.Notification
	date := o.now().Format(dateLayout)
	subject := strings.ReplaceAll(n.Subject, "{date}", date)
	body := strings.ReplaceAll(n.Body, "{date}", date)

	if err := rc.Session.SendNotification(ctx, n.Recipients, subject, body, []string{shareLink}); err != nil {
		return stepError(domain.StepNotify, ErrNotification, err)
	}

	rc.Run.Outcome.NotificationSent = true
	rc.Run.Advance(domain.RunStatusNotified)
	logger.Info("team notified", "recipients", len(n.Recipients))
	return nil
}

// Cleanup удаляет рабочую директорию, если это включено в конфигурации.
func (o *Orchestrator) Cleanup(rc *RunContext) error {
	logger := telemetry.WithRunID(o.logger, rc.ID.String())

	if !o.cfg.CleanupWorkDirectory {
		logger.Info("work directory kept", "work_dir", rc.WorkDir)
		return nil
	}

	if err := os.RemoveAll(rc.WorkDir); err != nil {
		return stepError(domain.StepCleanup, ErrCleanup, err)
	}

	rc.Run.Outcome.WorkDirRemoved = true
	logger.Info("work directory removed", "work_dir", rc.WorkDir)
	return nil
}

// resolveBillings: вычисленное значение, затем значение из конфигурации, затем default.
func resolveBillings(derived *string, configured string) string {
	if derived != nil && strings.TrimSpace(*derived) != "" {
		return strings.TrimSpace(*derived)
	}
	return stringOrDefault(configured, config.DefaultBillings)
}

func libraryOrDefault(name string) string {
	return stringOrDefault(name, config.DefaultLibraryName)
}

func stringOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// copyFile копирует src в dst, перезаписывая dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
