package metadata

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"fidera/internal/domain"
)

var sanitizeOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fidera_sanitize_outcomes_total",
	Help: "Sanitization results by method",
}, []string{"method"})

// Outcome описывает результат очистки. Sanitized=false означает, что сработала только
// побайтовая копия и метаданные в файле остались.
type Outcome struct {
	Method    string
	Sanitized bool
}

// Err возвращает domain.ErrSanitizationDegraded для деградировавшей очистки
func (o Outcome) Err() error {
	if o.Sanitized {
		return nil
	}
	return domain.ErrSanitizationDegraded
}

// Sanitizer снимает метаданные: exiftool -all=, нативная очистка по формату, копия.
// Входной файл никогда не изменяется.
type Sanitizer struct {
	tools   Tools
	formats map[string]format
}

func NewSanitizer(tools Tools) *Sanitizer {
	return &Sanitizer{tools: tools, formats: formatsFor(tools)}
}

// Sanitize пишет очищенную копию in в out. Ошибка возвращается, только если
// не удалось получить даже копию.
func (s *Sanitizer) Sanitize(ctx context.Context, in, out string) (Outcome, error) {
	logger := log.With().Str("component", "sanitizer").Str("file", filepath.Base(in)).Logger()

	if _, err := os.Stat(in); err != nil {
		return Outcome{}, fmt.Errorf("sanitize input: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return Outcome{}, fmt.Errorf("failed to create output dir: %w", err)
	}

	if available(s.tools.Exiftool) {
		os.Remove(out)
		// exiftool отказывается писать поверх существующего файла
		_, err := s.tools.run(ctx, s.tools.Exiftool, "-all=", "-o", out, in)
		if err == nil {
			return s.done(Outcome{Method: MethodExiftool, Sanitized: true}), nil
		}
		logger.Warn().Err(err).Msg("exiftool strip failed, trying native sanitizer")
	}

	if f, ok := s.formats[kindOf(in)]; ok {
		os.Remove(out)
		err := f.strip(ctx, in, out)
		if err == nil {
			return s.done(Outcome{Method: nativePrefix + f.name(), Sanitized: true}), nil
		}
		logger.Warn().Err(err).Str("method", nativePrefix+f.name()).Msg("native strip failed")
	}

	if err := copyFile(in, out); err != nil {
		return Outcome{}, fmt.Errorf("fallback copy failed: %w", err)
	}
	outcome := s.done(Outcome{Method: MethodCopy, Sanitized: false})
	logger.Warn().Err(outcome.Err()).Msg("metadata left in place, stored as raw copy")
	return outcome, nil
}

func (s *Sanitizer) done(o Outcome) Outcome {
	sanitizeOutcomesTotal.WithLabelValues(o.Method).Inc()
	return o
}

func copyFile(in, out string) (err error) {
	src, err := os.Open(in)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(dst, src)
	return err
}
