package domain

import "errors"

// Ошибки жизненного цикла файла.
// Слои ниже оборачивают их через fmt.Errorf("...: %w", err), а обработчики
// сопоставляют их с HTTP-статусами через errors.Is.
var (
	ErrNotFound             = errors.New("file not found")
	ErrInvalidState         = errors.New("operation is not valid for the current file state")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrForbidden            = errors.New("access denied")
	ErrExtractionDegraded   = errors.New("no structured metadata extractor matched")
	ErrSanitizationDegraded = errors.New("sanitization degraded to a raw copy")
	ErrStorageUnavailable   = errors.New("object storage is unavailable")
	ErrObjectNotFound       = errors.New("object not found")
)
