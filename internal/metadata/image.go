package metadata

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/h2non/bimg"

	"fidera/internal/domain"
)

const reencodeQuality = 95

type imageFormat struct{}

func (imageFormat) name() string { return "image" }

// extract возвращает контейнер, размеры и таблицу EXIF
func (imageFormat) extract(_ context.Context, path string) (domain.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	image := bimg.NewImage(data)
	info, err := image.Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read image metadata: %w", err)
	}

	meta := domain.Metadata{
		"Format":      strings.ToUpper(info.Type),
		"FileType":    strings.ToUpper(info.Type),
		"ImageWidth":  fmt.Sprint(info.Size.Width),
		"ImageHeight": fmt.Sprint(info.Size.Height),
		"ImageSize":   fmt.Sprintf("%dx%d", info.Size.Width, info.Size.Height),
	}
	put(meta, "ColorSpace", info.Space)
	put(meta, "Orientation", info.Orientation)

	exif := info.EXIF
	put(meta, "Make", exif.Make)
	put(meta, "Model", exif.Model)
	put(meta, "Software", exif.Software)
	put(meta, "DateTime", exif.Datetime)
	put(meta, "DateTimeOriginal", exif.DateTimeOriginal)
	put(meta, "DateTimeDigitized", exif.DateTimeDigitized)
	put(meta, "GPSLatitude", exif.GPSLatitude)
	put(meta, "GPSLatitudeRef", exif.GPSLatitudeRef)
	put(meta, "GPSLongitude", exif.GPSLongitude)
	put(meta, "GPSLongitudeRef", exif.GPSLongitudeRef)
	put(meta, "GPSAltitude", exif.GPSAltitude)
	return meta, nil
}

// strip перекодирует пиксели в новый контейнер того же типа без EXIF, ICC и XMP.
// Ориентация применяется к пикселям до удаления тега.
func (imageFormat) strip(_ context.Context, in, out string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	if bimg.DetermineImageType(data) == bimg.UNKNOWN {
		return fmt.Errorf("unsupported image type")
	}

	processed, err := bimg.NewImage(data).Process(bimg.Options{
		StripMetadata: true,
		Quality:       reencodeQuality,
	})
	if err != nil {
		return fmt.Errorf("failed to re-encode image: %w", err)
	}

	if err := os.WriteFile(out, processed, 0o600); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}
