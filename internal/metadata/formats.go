package metadata

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"fidera/internal/domain"
)

// Значения ExtractionMethod и Outcome.Method
const (
	MethodExiftool = "exiftool"
	MethodNone     = "none"
	MethodCopy     = "copy"
	nativePrefix   = "native:"
)

// format описывает нативную обработку одного семейства форматов
type format interface {
	name() string
	extract(ctx context.Context, path string) (domain.Metadata, error)
	strip(ctx context.Context, in, out string) error
}

var extensionKinds = map[string]string{
	".pdf":  "pdf",
	".jpg":  "image",
	".jpeg": "image",
	".png":  "image",
	".webp": "image",
	".gif":  "image",
	".tif":  "image",
	".tiff": "image",
	".heic": "image",
	".avif": "image",
	".docx": "docx",
	".mp3":  "media",
	".m4a":  "media",
	".wav":  "media",
	".flac": "media",
	".ogg":  "media",
	".mp4":  "media",
	".m4v":  "media",
	".mov":  "media",
	".mkv":  "media",
	".webm": "media",
	".avi":  "media",
}

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// kindOf определяет семейство формата по расширению, а если оно неизвестно, по содержимому
func kindOf(path string) string {
	if kind, ok := extensionKinds[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	switch {
	case mtype.Is("application/pdf"):
		return "pdf"
	case mtype.Is(docxMIME):
		return "docx"
	}
	for m := mtype; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return "image"
		case strings.HasPrefix(m.String(), "video/"), strings.HasPrefix(m.String(), "audio/"):
			return "media"
		}
	}
	return ""
}

// DetectContentType определяет MIME-тип файла по содержимому
func DetectContentType(path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mtype.String()
}

func formatsFor(tools Tools) map[string]format {
	return map[string]format{
		"pdf":   pdfFormat{},
		"image": imageFormat{},
		"docx":  docxFormat{},
		"media": mediaFormat{tools: tools},
	}
}
