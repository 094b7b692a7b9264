package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/engagement-workflow/internal/config"
	"github.com/shaiso/engagement-workflow/internal/domain"
	"github.com/shaiso/engagement-workflow/internal/external"
)

var fixedNow = time.Date(2025, 9, 15, 6, 0, 0, 0, time.UTC)

// --- Fakes ---

type downloadCall struct {
	site, folder, pattern, destDir, library string
}

type mailCall struct {
	recipients    []string
	subject, body string
	links         []string
}

type fakeSession struct {
	mu        sync.Mutex
	downloads []downloadCall
	uploads   []string
	links     []string
	mails     []mailCall

	uploadErr error
	linkErr   error
	mailErr   error
}

func (s *fakeSession) DownloadLatestFile(_ context.Context, site, folder, pattern, destDir, library string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads = append(s.downloads, downloadCall{site, folder, pattern, destDir, library})

	name := strings.TrimSuffix(pattern, "*.xlsx") + "_latest.xlsx"
	path := filepath.Join(destDir, name)
	if err := os.WriteFile(path, []byte(pattern), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *fakeSession) UploadFile(_ context.Context, site, folder, localFile, library string, overwrite bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	if !overwrite {
		return "", errors.New("overwrite expected")
	}
	s.uploads = append(s.uploads, strings.Join([]string{site, folder, localFile, library}, "|"))
	return "https://contoso.sharepoint.com/" + filepath.Base(localFile), nil
}

func (s *fakeSession) CreateShareLink(_ context.Context, site, folder, filename, library, linkType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkErr != nil {
		return "", s.linkErr
	}
	s.links = append(s.links, strings.Join([]string{site, folder, filename, library, linkType}, "|"))
	return "https://share/" + filename, nil
}

func (s *fakeSession) SendNotification(_ context.Context, recipients []string, subject, body string, links []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mails = append(s.mails, mailCall{recipients, subject, body, links})
	return s.mailErr
}

type fakeAuth struct {
	session     *fakeSession
	err         error
	appCalls    int
	delegCalls  int
	connectPath string
}

func (a *fakeAuth) AuthenticateAppOnly(context.Context) (Session, error) {
	a.appCalls++
	if a.err != nil {
		return nil, a.err
	}
	return a.session, nil
}

func (a *fakeAuth) AuthenticateDelegated(context.Context) (Session, error) {
	a.delegCalls++
	if a.err != nil {
		return nil, a.err
	}
	return a.session, nil
}

func (a *fakeAuth) connector() Connector {
	return func(path string) (Authenticator, error) {
		a.connectPath = path
		return a, nil
	}
}

type fakeBills struct {
	billings  *string
	err       error
	monthFrom string
}

func (b *fakeBills) PrepareBills(_ context.Context, input, output, invoiceMonthFrom string) (*string, error) {
	b.monthFrom = invoiceMonthFrom
	if b.err != nil {
		return nil, b.err
	}
	return b.billings, os.WriteFile(output, []byte("bills:"+input), 0o644)
}

type fakeBoB struct {
	err error
}

func (b *fakeBoB) PrepareBoB(_ context.Context, input, output string) error {
	if b.err != nil {
		return b.err
	}
	return os.WriteFile(output, []byte("bob:"+input), 0o644)
}

type fakeAnalyzer struct {
	req         external.AnalysisRequest
	calls       int
	tempExisted bool
	err         error
}

func (a *fakeAnalyzer) Analyze(_ context.Context, req external.AnalysisRequest) error {
	a.calls++
	a.req = req
	_, statErr := os.Stat(req.BoBFile)
	a.tempExisted = statErr == nil
	if a.err != nil {
		return a.err
	}
	return os.WriteFile(req.OutputFile, []byte("report"), 0o644)
}

type fakeHistory struct {
	created int
	updated int
	last    domain.RunStatus
	err     error
}

func (h *fakeHistory) Create(_ context.Context, run *domain.Run) error {
	h.created++
	h.last = run.Status
	return h.err
}

func (h *fakeHistory) Update(_ context.Context, run *domain.Run) error {
	h.updated++
	h.last = run.Status
	return h.err
}

type fakeEvents struct {
	published []domain.RunStatus
	err       error
}

func (e *fakeEvents) PublishRunFinished(_ context.Context, run *domain.Run) error {
	e.published = append(e.published, run.Status)
	return e.err
}

type fakeMetrics struct {
	steps     map[string]string
	runStatus string
	delivered bool
}

func (m *fakeMetrics) ObserveStep(step, status string, _ time.Duration) {
	if m.steps == nil {
		m.steps = make(map[string]string)
	}
	m.steps[step] = status
}

func (m *fakeMetrics) ObserveRun(status string, _ time.Duration, _ time.Time, delivered bool) {
	m.runStatus = status
	m.delivered = delivered
}

// --- Fixture ---

type fixture struct {
	cfg      *config.Config
	session  *fakeSession
	auth     *fakeAuth
	bills    *fakeBills
	bob      *fakeBoB
	analyzer *fakeAnalyzer
	history  *fakeHistory
	events   *fakeEvents
	metrics  *fakeMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	session := &fakeSession{}
	return &fixture{
		cfg: &config.Config{
			WorkDirectory:    filepath.Join(t.TempDir(), "work"),
			SharePointConfig: "sharepoint_config.json",
			AuthType:         config.AuthTypeDelegated,
			Downloads: config.DownloadsConfig{
				Location:     config.Location{SiteName: "Finance", FolderPath: "Reports/Inputs"},
				WIPsPattern:  "WIPs*.xlsx",
				BillsPattern: "Bills*.xlsx",
				BoBPattern:   "BoB*.xlsx",
			},
			Uploads: config.UploadsConfig{
				Location: config.Location{SiteName: "Finance", FolderPath: "Reports/Out"},
			},
			Analysis: config.AnalysisConfig{
				FYStart: "2025-07-01",
				FYEnd:   "2026-06-30",
			},
		},
		session:  session,
		auth:     &fakeAuth{session: session},
		bills:    &fakeBills{},
		bob:      &fakeBoB{},
		analyzer: &fakeAnalyzer{},
		history:  &fakeHistory{},
		events:   &fakeEvents{},
		metrics:  &fakeMetrics{},
	}
}

func (f *fixture) orchestrator() *Orchestrator {
	return New(Config{
		Workflow: f.cfg,
		Connect:  f.auth.connector(),
		Bills:    f.bills,
		BoB:      f.bob,
		Analyzer: f.analyzer,
		History:  f.history,
		Events:   f.events,
		Metrics:  f.metrics,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return fixedNow },
	})
}

// authenticated возвращает RunContext после Authenticate.
func (f *fixture) authenticated(t *testing.T, o *Orchestrator) *RunContext {
	t.Helper()
	rc, err := o.NewRunContext()
	require.NoError(t, err)
	require.NoError(t, o.Authenticate(context.Background(), rc))
	return rc
}

func ptr(s string) *string { return &s }

// --- RunContext ---

func TestNewRunContext(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()

	rc, err := o.NewRunContext()
	require.NoError(t, err)

	assert.DirExists(t, f.cfg.WorkDirectory)
	assert.Equal(t, "20250915_060000", rc.Timestamp)
	assert.Equal(t, rc.ID, rc.Run.ID)
	assert.Equal(t, domain.RunStatusInit, rc.Run.Status)
	assert.Empty(t, rc.Files)

	assert.Equal(t, filepath.Join(rc.WorkDir, "Bills_prepared_20250915_060000.xlsx"), rc.BillsPreparedPath())
	assert.Equal(t, filepath.Join(rc.WorkDir, "BoB_prepared_20250915_060000.xlsx"), rc.BoBPreparedPath())
	assert.Equal(t, filepath.Join(rc.WorkDir, "BoB_temp_20250915_060000.xlsx"), rc.BoBTempPath())
	assert.Equal(t, filepath.Join(rc.WorkDir, "Report_20250915_060000.xlsx"), rc.OutputPath("Report"))
}

// --- Authenticate ---

func TestAuthenticate_Strategy(t *testing.T) {
	tests := []struct {
		authType      config.AuthType
		wantApp       int
		wantDelegated int
	}{
		{config.AuthTypeApp, 1, 0},
		{config.AuthTypeDelegated, 0, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.authType), func(t *testing.T) {
			f := newFixture(t)
			f.cfg.AuthType = tt.authType
			o := f.orchestrator()

			rc := f.authenticated(t, o)
			assert.Equal(t, tt.wantApp, f.auth.appCalls)
			assert.Equal(t, tt.wantDelegated, f.auth.delegCalls)
			assert.Equal(t, "sharepoint_config.json", f.auth.connectPath)
			assert.NotNil(t, rc.Session)
			assert.Equal(t, domain.RunStatusAuthenticated, rc.Run.Status)
		})
	}
}

func TestAuthenticate_Failure(t *testing.T) {
	f := newFixture(t)
	f.auth.err = errors.New("AADSTS70016: pending")
	o := f.orchestrator()

	rc, err := o.NewRunContext()
	require.NoError(t, err)

	err = o.Authenticate(context.Background(), rc)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Contains(t, err.Error(), "AADSTS70016")

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, domain.StepAuthenticate, stepErr.Step)
	assert.Nil(t, rc.Session)
}

// --- DownloadInputs ---

func TestDownloadInputs_AllRoles(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()
	rc := f.authenticated(t, o)

	require.NoError(t, o.DownloadInputs(context.Background(), rc))

	require.Len(t, f.session.downloads, 3)
	for i, pattern := range []string{"WIPs*.xlsx", "Bills*.xlsx", "BoB*.xlsx"} {
		assert.Equal(t, downloadCall{
			site:    "Finance",
			folder:  "Reports/Inputs",
			pattern: pattern,
			destDir: rc.WorkDir,
			library: "Documents",
		}, f.session.downloads[i])
	}

	assert.Len(t, rc.Files, 3)
	assert.Equal(t, filepath.Join(rc.WorkDir, "WIPs_latest.xlsx"), rc.Files[RoleWIPs])
	assert.Equal(t, domain.RunStatusDownloaded, rc.Run.Status)
}

func TestDownloadInputs_MissingBillsPattern(t *testing.T) {
	f := newFixture(t)
	f.cfg.Downloads.BillsPattern = ""
	o := f.orchestrator()
	rc := f.authenticated(t, o)

	require.NoError(t, o.DownloadInputs(context.Background(), rc))
	assert.Len(t, f.session.downloads, 2)

	_, ok := rc.Files[RoleBills]
	assert.False(t, ok)

	_, _, err := o.PrepareBills(context.Background(), rc)
	assert.ErrorIs(t, err, ErrMissingInput)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, domain.StepPrepareBills, stepErr.Step)
}

func TestDownloadInputs_CustomLibrary(t *testing.T) {
	f := newFixture(t)
	f.cfg.Downloads.LibraryName = "Shared Documents"
	o := f.orchestrator()
	rc := f.authenticated(t, o)

	require.NoError(t, o.DownloadInputs(context.Background(), rc))
	for _, call := range f.session.downloads {
		assert.Equal(t, "Shared Documents", call.library)
	}
}

// --- Prepare ---

func TestPrepareBills(t *testing.T) {
	f := newFixture(t)
	f.bills.billings = ptr("21.5M")
	o := f.orchestrator()
	rc := f.authenticated(t, o)
	require.NoError(t, o.DownloadInputs(context.Background(), rc))

	path, billings, err := o.PrepareBills(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, rc.BillsPreparedPath(), path)
	assert.FileExists(t, path)
	require.NotNil(t, billings)
	assert.Equal(t, "21.5M", *billings)
	assert.Equal(t, config.DefaultInvoiceMonthFrom, f.bills.monthFrom)
}

func TestPrepare_Failure(t *testing.T) {
	f := newFixture(t)
	f.bob.err = errors.New("sheet not found")
	o := f.orchestrator()
	rc := f.authenticated(t, o)
	require.NoError(t, o.DownloadInputs(context.Background(), rc))

	_, err := o.PrepareBoB(context.Background(), rc)
	assert.ErrorIs(t, err, ErrPrepare)
	assert.Contains(t, err.Error(), "sheet not found")
}

// --- RunAnalysis ---

func prepared(t *testing.T, f *fixture, o *Orchestrator) (*RunContext, string, string) {
	t.Helper()
	rc := f.authenticated(t, o)
	require.NoError(t, o.DownloadInputs(context.Background(), rc))
	billsPath, _, err := o.PrepareBills(context.Background(), rc)
	require.NoError(t, err)
	bobPath, err := o.PrepareBoB(context.Background(), rc)
	require.NoError(t, err)
	return rc, billsPath, bobPath
}

func TestRunAnalysis_Billings(t *testing.T) {
	tests := []struct {
		name       string
		derived    *string
		configured config.Scalar
		want       string
	}{
		{name: "derived wins", derived: ptr("21.5M"), configured: "18M", want: "21.5M"},
		{name: "configured when not derived", derived: nil, configured: "18M", want: "18M"},
		{name: "configured when derived empty", derived: ptr(""), configured: "18M", want: "18M"},
		{name: "default", derived: nil, configured: "", want: "17M"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.cfg.Analysis.Billings = tt.configured
			o := f.orchestrator()
			rc, billsPath, bobPath := prepared(t, f, o)

			_, err := o.RunAnalysis(context.Background(), rc, billsPath, bobPath, tt.derived)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.analyzer.req.Billings)
		})
	}
}

func TestRunAnalysis_Request(t *testing.T) {
	f := newFixture(t)
	header := 3
	f.cfg.Analysis.HeaderRowIndex = &header
	f.cfg.Analysis.PrintMarkdown = true
	o := f.orchestrator()
	rc, billsPath, bobPath := prepared(t, f, o)

	output, err := o.RunAnalysis(context.Background(), rc, billsPath, bobPath, nil)
	require.NoError(t, err)

	req := f.analyzer.req
	assert.Equal(t, rc.Files[RoleWIPs], req.InputFile)
	assert.Equal(t, "Detail", req.DetailSheet)
	assert.Equal(t, &header, req.HeaderRowIndex)
	assert.Equal(t, "2025-07-01", req.FYStart)
	assert.Equal(t, "2026-06-30", req.FYEnd)
	assert.Equal(t, 28.0, req.TargetMarginPct)
	assert.Equal(t, billsPath, req.BillsFile)
	assert.Equal(t, rc.BoBTempPath(), req.BoBFile)
	assert.True(t, req.PrintMarkdown)
	assert.Equal(t, rc.OutputPath("Engagement_Summary_FY26"), output)
	assert.Equal(t, output, req.OutputFile)
	assert.Equal(t, domain.RunStatusAnalyzed, rc.Run.Status)
}

func TestRunAnalysis_ExplicitZeroMargin(t *testing.T) {
	f := newFixture(t)
	zero := 0.0
	f.cfg.Analysis.TargetMarginPct = &zero
	o := f.orchestrator()
	rc, billsPath, bobPath := prepared(t, f, o)

	_, err := o.RunAnalysis(context.Background(), rc, billsPath, bobPath, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, f.analyzer.req.TargetMarginPct)
}

func TestRunAnalysis_TempBoBRemoved(t *testing.T) {
	for _, fail := range []bool{false, true} {
		name := "success"
		if fail {
			name = "failure"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			if fail {
				f.analyzer.err = errors.New("engine crashed")
			}
			o := f.orchestrator()
			rc, billsPath, bobPath := prepared(t, f, o)

			_, err := o.RunAnalysis(context.Background(), rc, billsPath, bobPath, nil)
			if fail {
				assert.ErrorIs(t, err, ErrAnalysis)
			} else {
				require.NoError(t, err)
			}

			assert.True(t, f.analyzer.tempExisted, "temp copy must exist during analysis")
			assert.NoFileExists(t, rc.BoBTempPath())
			assert.FileExists(t, bobPath)
		})
	}
}

func TestRunAnalysis_MissingWIPs(t *testing.T) {
	f := newFixture(t)
	f.cfg.Downloads.WIPsPattern = ""
	o := f.orchestrator()
	rc, billsPath, bobPath := prepared(t, f, o)

	_, err := o.RunAnalysis(context.Background(), rc, billsPath, bobPath, nil)
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.Equal(t, 0, f.analyzer.calls)
}

// --- Upload ---

func TestUploadResults(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()
	rc := f.authenticated(t, o)

	link, err := o.UploadResults(context.Background(), rc, filepath.Join(rc.WorkDir, "Report_20250915_060000.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, "https://share/Report_20250915_060000.xlsx", link)
	assert.Equal(t, []string{"Finance|Reports/Out|Report_20250915_060000.xlsx|Documents|view"}, f.session.links)
	assert.True(t, rc.Run.Outcome.ArtifactDelivered)
	assert.Equal(t, link, rc.Run.Outcome.ShareLink)
}

func TestUploadResults_Failures(t *testing.T) {
	t.Run("upload", func(t *testing.T) {
		f := newFixture(t)
		f.session.uploadErr = errors.New("HTTP 507")
		o := f.orchestrator()
		rc := f.authenticated(t, o)

		_, err := o.UploadResults(context.Background(), rc, "out.xlsx")
		assert.ErrorIs(t, err, ErrUpload)
		assert.False(t, rc.Run.Outcome.ArtifactDelivered)
		assert.Empty(t, f.session.links)
	})

	t.Run("link", func(t *testing.T) {
		f := newFixture(t)
		f.session.linkErr = errors.New("HTTP 403")
		o := f.orchestrator()
		rc := f.authenticated(t, o)

		_, err := o.UploadResults(context.Background(), rc, "out.xlsx")
		assert.ErrorIs(t, err, ErrLink)
		assert.NotErrorIs(t, err, ErrUpload)
		assert.True(t, rc.Run.Outcome.ArtifactDelivered)
	})
}

// --- NotifyTeam ---

func TestNotifyTeam_Disabled(t *testing.T) {
	tests := []struct {
		name         string
		notification *config.NotificationConfig
	}{
		{name: "absent", notification: nil},
		{name: "disabled", notification: &config.NotificationConfig{Enabled: false, Recipients: []string{"a@contoso.com"}, Subject: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.cfg.Notification = tt.notification
			o := f.orchestrator()
			rc := f.authenticated(t, o)

			require.NoError(t, o.NotifyTeam(context.Background(), rc, "https://share/x"))
			assert.Empty(t, f.session.mails)
			assert.True(t, rc.Run.Outcome.NotificationSkipped)
		})
	}
}

func TestNotifyTeam_Enabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Notification = &config.NotificationConfig{
		Enabled:    true,
		Recipients: []string{"a@contoso.com", "b@contoso.com"},
		Subject:    "Engagement report {date}",
		Body:       "Report for {date} is ready.",
	}
	o := f.orchestrator()
	rc := f.authenticated(t, o)

	require.NoError(t, o.NotifyTeam(context.Background(), rc, "https://share/x"))
	require.Len(t, f.session.mails, 1)

	mail := f.session.mails[0]
	assert.Equal(t, []string{"a@contoso.com", "b@contoso.com"}, mail.recipients)
	assert.Equal(t, "Engagement report 2025-09-15", mail.subject)
	assert.Equal(t, "Report for 2025-09-15 is ready.", mail.body)
	assert.Equal(t, []string{"https://share/x"}, mail.links)
	assert.True(t, rc.Run.Outcome.NotificationSent)
}

// --- Cleanup ---

func TestCleanup(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()
	rc, err := o.NewRunContext()
	require.NoError(t, err)

	require.NoError(t, o.Cleanup(rc))
	assert.DirExists(t, rc.WorkDir)

	f.cfg.CleanupWorkDirectory = true
	require.NoError(t, o.Cleanup(rc))
	assert.NoDirExists(t, rc.WorkDir)
	assert.True(t, rc.Run.Outcome.WorkDirRemoved)
}

// --- Run ---

func TestRun_KeepsWorkDirectory(t *testing.T) {
	f := newFixture(t)
	f.bills.billings = ptr("19M")
	o := f.orchestrator()

	run, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCleanedUp, run.Status)
	assert.Equal(t, "20250915_060000", run.Timestamp)

	dir := f.cfg.WorkDirectory
	assert.FileExists(t, filepath.Join(dir, "Bills_prepared_20250915_060000.xlsx"))
	assert.FileExists(t, filepath.Join(dir, "BoB_prepared_20250915_060000.xlsx"))
	assert.FileExists(t, filepath.Join(dir, "Engagement_Summary_FY26_20250915_060000.xlsx"))
	assert.NoFileExists(t, filepath.Join(dir, "BoB_temp_20250915_060000.xlsx"))

	assert.Equal(t, "19M", f.analyzer.req.Billings)
	assert.True(t, run.Outcome.ArtifactDelivered)
	assert.True(t, run.Outcome.NotificationSkipped)
	assert.False(t, run.Outcome.WorkDirRemoved)
	assert.Equal(t, "https://share/Engagement_Summary_FY26_20250915_060000.xlsx", run.Outcome.ShareLink)

	require.Len(t, run.Steps, len(domain.Steps()))
	for i, step := range domain.Steps() {
		assert.Equal(t, step, run.Steps[i].Name)
	}
	rec, ok := run.Step(domain.StepNotify)
	require.True(t, ok)
	assert.Equal(t, domain.StepStatusSkipped, rec.Status)

	assert.Equal(t, 1, f.history.created)
	assert.Equal(t, domain.RunStatusCleanedUp, f.history.last)
	assert.Equal(t, []domain.RunStatus{domain.RunStatusCleanedUp}, f.events.published)
	assert.Equal(t, "CLEANED_UP", f.metrics.runStatus)
	assert.True(t, f.metrics.delivered)
	assert.Equal(t, "SUCCEEDED", f.metrics.steps["analyze"])
}

func TestRun_RemovesWorkDirectory(t *testing.T) {
	f := newFixture(t)
	f.cfg.CleanupWorkDirectory = true
	o := f.orchestrator()

	run, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCleanedUp, run.Status)
	assert.NoDirExists(t, f.cfg.WorkDirectory)
	assert.True(t, run.Outcome.WorkDirRemoved)
}

func TestRun_NotificationFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	f.cfg.CleanupWorkDirectory = true
	f.cfg.Notification = &config.NotificationConfig{
		Enabled:    true,
		Recipients: []string{"a@contoso.com"},
		Subject:    "Report {date}",
	}
	f.session.mailErr = errors.New("mailbox not found")
	o := f.orchestrator()

	run, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotification)
	assert.True(t, IsPartial(err))

	assert.Equal(t, domain.RunStatusPartial, run.Status)
	assert.True(t, run.Outcome.ArtifactDelivered)
	assert.False(t, run.Outcome.NotificationSent)
	assert.Contains(t, run.Error, "mailbox not found")

	// Очистка выполняется и после ошибки уведомления.
	assert.NoDirExists(t, f.cfg.WorkDirectory)
	assert.Equal(t, []domain.RunStatus{domain.RunStatusPartial}, f.events.published)
}

func TestRun_FatalStepAborts(t *testing.T) {
	f := newFixture(t)
	f.session.uploadErr = errors.New("HTTP 507")
	f.cfg.CleanupWorkDirectory = true
	o := f.orchestrator()

	run, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.False(t, run.Outcome.ArtifactDelivered)

	// Отчёт остаётся на диске для ручной загрузки.
	assert.FileExists(t, filepath.Join(f.cfg.WorkDirectory, "Engagement_Summary_FY26_20250915_060000.xlsx"))

	_, ok := run.Step(domain.StepNotify)
	assert.False(t, ok)
	rec, ok := run.Step(domain.StepUpload)
	require.True(t, ok)
	assert.Equal(t, domain.StepStatusFailed, rec.Status)

	assert.Equal(t, "FAILED", f.metrics.runStatus)
	assert.False(t, f.metrics.delivered)
}

func TestRun_AuthFailure(t *testing.T) {
	f := newFixture(t)
	f.auth.err = errors.New("invalid_grant")
	o := f.orchestrator()

	run, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Empty(t, f.session.downloads)
	assert.Len(t, run.Steps, 1)
}

func TestRun_HistoryAndEventFailuresIgnored(t *testing.T) {
	f := newFixture(t)
	f.history.err = errors.New("connection refused")
	f.events.err = errors.New("channel closed")
	o := f.orchestrator()

	run, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCleanedUp, run.Status)
}

func TestRun_OptionalCollaboratorsAbsent(t *testing.T) {
	f := newFixture(t)
	o := New(Config{
		Workflow: f.cfg,
		Connect:  f.auth.connector(),
		Bills:    f.bills,
		BoB:      f.bob,
		Analyzer: f.analyzer,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	run, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCleanedUp, run.Status)
}

func TestStepError(t *testing.T) {
	cause := errors.New("boom")
	err := stepError(domain.StepUpload, ErrUpload, cause)

	assert.Equal(t, "step upload: upload failed: boom", err.Error())
	assert.ErrorIs(t, err, ErrUpload)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsPartial(err))
}
