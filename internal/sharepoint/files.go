package sharepoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// driveItem — поля элемента библиотеки, которые нужны клиенту.
type driveItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	WebURL       string    `json:"webUrl"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModifiedDateTime"`
	DownloadURL  string    `json:"@microsoft.graph.downloadUrl"`
	File         *struct{} `json:"file"`
}

// DownloadLatestFile скачивает самый свежий файл папки, имя которого подходит под pattern.
// Возвращает локальный путь в destDir.
func (s *Session) DownloadLatestFile(ctx context.Context, site, folder, pattern, destDir, library string) (string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return "", fmt.Errorf("invalid pattern %q", pattern)
	}

	driveID, err := s.driveID(ctx, site, library)
	if err != nil {
		return "", err
	}

	latest, err := s.latestMatch(ctx, driveID, folder, pattern)
	if err != nil {
		return "", err
	}

	s.logger.Info("downloading file",
		"site", site,
		"folder", folder,
		"file", latest.Name,
		"modified", latest.LastModified,
	)

	dest := filepath.Join(destDir, filepath.Base(latest.Name))
	if err := s.download(ctx, driveID, latest, dest); err != nil {
		return "", fmt.Errorf("download %s: %w", latest.Name, err)
	}
	return dest, nil
}

// latestMatch перебирает страницы листинга и выбирает файл с максимальным lastModifiedDateTime.
func (s *Session) latestMatch(ctx context.Context, driveID, folder, pattern string) (*driveItem, error) {
	next := s.itemURL(driveID, folder, "/children") + "?$top=200"

	var latest *driveItem
	for next != "" {
		var page struct {
			Value    []driveItem `json:"value"`
			NextLink string      `json:"@odata.nextLink"`
		}
		if err := s.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("list folder %s: %w", folder, err)
		}

		for i := range page.Value {
			item := &page.Value[i]
			if item.File == nil {
				continue
			}
			ok, _ := doublestar.Match(pattern, item.Name)
			if !ok {
				continue
			}
			if latest == nil || item.LastModified.After(latest.LastModified) {
				latest = item
			}
		}
		next = page.NextLink
	}

	if latest == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoMatchingFile, pattern, folder)
	}
	return latest, nil
}

func (s *Session) download(ctx context.Context, driveID string, item *driveItem, dest string) error {
	req := request{method: http.MethodGet}
	if item.DownloadURL != "" {
		req.url = item.DownloadURL
		req.plain = true
	} else {
		req.url = fmt.Sprintf("%s/drives/%s/items/%s/content", s.cfg.GraphURL, driveID, item.ID)
	}

	resp, err := s.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return f.Close()
}

// UploadFile загружает локальный файл в папку библиотеки.
// При overwrite=false существующий файл даёт ошибку 409.
// Возвращает webUrl загруженного элемента.
func (s *Session) UploadFile(ctx context.Context, site, folder, localFile, library string, overwrite bool) (string, error) {
	data, err := os.ReadFile(localFile)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", localFile, err)
	}

	driveID, err := s.driveID(ctx, site, library)
	if err != nil {
		return "", err
	}

	conflict := "fail"
	if overwrite {
		conflict = "replace"
	}

	remote := joinPath(folder, filepath.Base(localFile))
	s.logger.Info("uploading file", "site", site, "path", remote, "size", len(data))

	var item driveItem
	if int64(len(data)) <= s.uploadLimit {
		err = s.simpleUpload(ctx, driveID, remote, conflict, data, &item)
	} else {
		err = s.sessionUpload(ctx, driveID, remote, conflict, data, &item)
	}
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", remote, err)
	}
	return item.WebURL, nil
}

func (s *Session) simpleUpload(ctx context.Context, driveID, remote, conflict string, data []byte, out *driveItem) error {
	resp, err := s.do(ctx, request{
		method:      http.MethodPut,
		url:         s.itemURL(driveID, remote, "/content") + "?@microsoft.graph.conflictBehavior=" + conflict,
		body:        data,
		contentType: "application/octet-stream",
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeItem(resp, out)
}

// sessionUpload загружает большой файл частями через upload session.
func (s *Session) sessionUpload(ctx context.Context, driveID, remote, conflict string, data []byte, out *driveItem) error {
	body := map[string]any{
		"item": map[string]any{"@microsoft.graph.conflictBehavior": conflict},
	}
	var us struct {
		UploadURL string `json:"uploadUrl"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.itemURL(driveID, remote, "/createUploadSession"), body, &us); err != nil {
		return fmt.Errorf("create upload session: %w", err)
	}

	total := int64(len(data))
	for start := int64(0); start < total; start += s.chunkSize {
		end := min(start+s.chunkSize, total)

		resp, err := s.do(ctx, request{
			method:      http.MethodPut,
			url:         us.UploadURL,
			body:        data[start:end],
			contentType: "application/octet-stream",
			headers: map[string]string{
				"Content-Range": fmt.Sprintf("bytes %d-%d/%d", start, end-1, total),
			},
			plain: true,
		})
		if err != nil {
			return fmt.Errorf("upload chunk at %d: %w", start, err)
		}

		// 202 — промежуточный фрагмент, 200/201 — элемент создан.
		if end == total {
			defer resp.Body.Close()
			return decodeItem(resp, out)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return nil
}

// CreateShareLink создаёт ссылку на файл: POST .../createLink.
// Область ссылки задаётся link_scope из конфигурации сессии.
func (s *Session) CreateShareLink(ctx context.Context, site, folder, filename, library, linkType string) (string, error) {
	driveID, err := s.driveID(ctx, site, library)
	if err != nil {
		return "", err
	}

	body := map[string]string{
		"type":  linkType,
		"scope": s.cfg.LinkScope,
	}
	var out struct {
		Link struct {
			WebURL string `json:"webUrl"`
		} `json:"link"`
	}
	remote := joinPath(folder, filename)
	if err := s.doJSON(ctx, http.MethodPost, s.itemURL(driveID, remote, "/createLink"), body, &out); err != nil {
		return "", fmt.Errorf("create link for %s: %w", remote, err)
	}
	if out.Link.WebURL == "" {
		return "", fmt.Errorf("create link for %s: empty link in response", remote)
	}
	return out.Link.WebURL, nil
}

func decodeItem(resp *http.Response, out *driveItem) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode drive item: %w", err)
	}
	return nil
}
