package screenshot

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

type Screenshot struct {
	browser  Browser
	filesDir string
}

func New(profile config.ScreenshotProfile, filesDir string) *Screenshot {
	return NewWithBrowser(Chrome{ExecPath: profile.ChromePath}, filesDir)
}

func NewWithBrowser(b Browser, filesDir string) *Screenshot {
	return &Screenshot{browser: b, filesDir: filesDir}
}

func (s *Screenshot) Name() string {
	return "ScreenShots"
}

func (s *Screenshot) Description() string {
	return "Takes screenshots of URLs and HTML documents with a headless browser."
}

func (s *Screenshot) Actions() []domain.Action {
	return []domain.Action{
		{
			ID:          "screenshot_file",
			Name:        "Screenshot File",
			Description: "Loads a previously downloaded HTML file into a browser and captures it",
			Params: []domain.Param{
				{Name: "html_file_id", Description: "File ID", Type: domain.Text},
			},
			Run: s.screenshotFile,
		},
		{
			ID:          "screenshot_html_field",
			Name:        "Screenshot HTML data column",
			Description: "Loads an HTML document held in a column into a browser and captures it",
			Params: []domain.Param{
				{Name: "html_column", Description: "HTML data column", Type: domain.Text},
			},
			Run: s.screenshotHTML,
		},
		{
			ID:          "screenshot_url",
			Name:        "Screenshot URL",
			Description: "Captures the page at the URL",
			Params: []domain.Param{
				{Name: "url", Description: "URL", Type: domain.Text},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return s.capture(ctx, args.String("url"))
			},
		},
	}
}

func (s *Screenshot) screenshotFile(ctx context.Context, args domain.Args) (any, error) {
	path := filepath.Join(s.filesDir, filepath.Base(args.String("html_file_id")))
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open html file: %w", err)
	}
	return s.capture(ctx, fileURL(path))
}

func (s *Screenshot) screenshotHTML(ctx context.Context, args domain.Args) (any, error) {
	dir, err := os.MkdirTemp("", "screenshot-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "tmp.html")
	if err := os.WriteFile(path, []byte(args.Raw("html_column")), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write html: %w", err)
	}
	return s.capture(ctx, fileURL(path))
}

// capture writes the PNG into the shared files dir as <uuid>.png.
func (s *Screenshot) capture(ctx context.Context, target string) (any, error) {
	png, err := s.browser.Capture(ctx, target, s.filesDir)
	if err != nil {
		return nil, err
	}

	fileID := uuid.NewString() + ".png"
	if err := os.WriteFile(filepath.Join(s.filesDir, fileID), png, 0o644); err != nil {
		return nil, fmt.Errorf("failed to save screenshot: %w", err)
	}
	// lhub_file_id is the key existing playbooks read.
	return domain.Result{"lhub_file_id": fileID, "file_id": fileID}, nil
}

func fileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: path}).String()
}
