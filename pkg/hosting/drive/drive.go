// Package drive hosts receipt images on Google Drive so that saved
// expenses can link back to the original photo.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/hisabi-bot/hisabi/pkg/api"
)

// Scopes returns the OAuth scopes the host needs.
func Scopes() []string {
	return []string{drive.DriveFileScope}
}

type Config struct {
	// FolderID is the Drive folder receipts are uploaded into. Empty
	// means the root of the authorized account.
	FolderID string
}

// Host implements api.ImageHost on Google Drive.
type Host struct {
	svc    *drive.Service
	cfg    Config
	logger *slog.Logger
}

func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}
	svc, err := drive.NewService(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &Host{svc: svc, cfg: cfg, logger: logger}, nil
}

// Upload stores the image and returns a reference with a shareable link.
func (h *Host) Upload(ctx context.Context, data []byte, mimeType, filename, userID string) (*api.ImageRef, error) {
	if filename == "" {
		filename = fmt.Sprintf("receipt-%s-%d", userID, time.Now().UnixNano())
	}
	meta := &drive.File{
		Name:     filename,
		MimeType: mimeType,
		// AppProperties survive renames and let operators trace a file
		// back to the user who sent it.
		AppProperties: map[string]string{"hisabi_user": userID},
	}
	if h.cfg.FolderID != "" {
		meta.Parents = []string{h.cfg.FolderID}
	}

	f, err := h.svc.Files.Create(meta).
		Media(bytes.NewReader(data)).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("uploading to drive: %w", err)
	}

	h.logger.Debug("uploaded receipt image", "file_id", f.Id, "user_id", userID)
	return &api.ImageRef{Provider: "drive", Ref: f.Id, URL: f.WebViewLink}, nil
}

// Delete removes a previously uploaded image.
func (h *Host) Delete(ctx context.Context, ref *api.ImageRef) error {
	if ref == nil || ref.Ref == "" {
		return nil
	}
	if err := h.svc.Files.Delete(ref.Ref).Context(ctx).Do(); err != nil {
		return fmt.Errorf("deleting drive file %s: %w", ref.Ref, err)
	}
	return nil
}
