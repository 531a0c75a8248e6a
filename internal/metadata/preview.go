package metadata

import "fidera/internal/domain"

// PreviewNote добавляется к каждому превью
const PreviewNote = "All other data including GPS, Author, Creator, Software will be REMOVED."

// Поля, которые не несут сведений об авторе, устройстве или происхождении файла
var previewAllowList = map[string]struct{}{
	"FileName":                 {},
	"FileSize":                 {},
	"FileType":                 {},
	"FileTypeExtension":        {},
	"MIMEType":                 {},
	"Format":                   {},
	"ImageWidth":               {},
	"ImageHeight":              {},
	"ImageSize":                {},
	"Duration":                 {},
	"PageCount":                {},
	"PDFVersion":               {},
	"Linearized":               {},
	"Encrypted":                {},
	domain.KeyExtractionMethod: {},
}

// GenerateCleanPreview показывает, какие поля останутся после очистки.
// Чистая функция, не падает на любом входе, включая nil.
func GenerateCleanPreview(raw domain.Metadata) domain.Metadata {
	preview := make(domain.Metadata, len(previewAllowList)+1)
	for key, value := range raw {
		if _, ok := previewAllowList[key]; ok {
			preview[key] = value
		}
	}
	preview[domain.KeyNote] = PreviewNote
	return preview
}
