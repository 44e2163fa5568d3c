package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/google/uuid"

	"github.com/set-night/studiochat/internal/domain"
	"github.com/set-night/studiochat/internal/service"
)

// DownloadFile downloads a file from Telegram by file ID.
func DownloadFile(ctx context.Context, b *bot.Bot, fileID string) ([]byte, string, error) {
	file, err := b.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}

	fileURL := b.FileDownloadLink(file)

	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file data: %w", err)
	}

	return data, file.FilePath, nil
}

var codeExtensions = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".json": true, ".yaml": true, ".yml": true,
	".xml": true, ".html": true, ".css": true, ".js": true, ".ts": true, ".py": true,
	".go": true, ".java": true, ".c": true, ".cpp": true, ".sql": true, ".sh": true,
}

// KindOf classifies an upload by MIME type, falling back to the file name.
func KindOf(mimeType, name string) domain.MimeKind {
	mimeType = strings.ToLower(mimeType)
	ext := strings.ToLower(path.Ext(name))

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return domain.MimeImage
	case strings.HasPrefix(mimeType, "video/"):
		return domain.MimeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return domain.MimeAudio
	case mimeType == "application/pdf" || ext == ".pdf":
		return domain.MimePDF
	case strings.Contains(mimeType, "spreadsheet") || strings.Contains(mimeType, "excel") || ext == ".xlsx" || ext == ".xls":
		return domain.MimeExcel
	case strings.Contains(mimeType, "wordprocessing") || mimeType == "application/msword" || ext == ".docx" || ext == ".doc":
		return domain.MimeDoc
	case strings.HasPrefix(mimeType, "text/") || codeExtensions[ext]:
		return domain.MimeCode
	}
	return domain.MimeOther
}

// Attachment downloads a Telegram file and wraps it for a chat message.
// Text kinds keep their raw content, everything else becomes a data URI.
func Attachment(ctx context.Context, b *bot.Bot, fileID, name, mimeType, label string) (domain.Attachment, error) {
	data, filePath, err := DownloadFile(ctx, b, fileID)
	if err != nil {
		return domain.Attachment{}, err
	}
	if name == "" {
		name = path.Base(filePath)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	att := domain.Attachment{
		ID:       uuid.NewString()[:8],
		Name:     name,
		MimeKind: KindOf(mimeType, name),
		Label:    label,
	}
	if att.MimeKind == domain.MimeCode {
		att.Content = string(data)
	} else {
		att.Content = service.EncodeDataURI(mimeType, data)
	}
	return att, nil
}
