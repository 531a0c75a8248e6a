package metadata

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xfrr/goffmpeg/media"

	"fidera/internal/domain"
)

type mediaFormat struct {
	tools Tools
}

func (mediaFormat) name() string { return "media" }

// probeOutput дополняет разбор goffmpeg полным словарём тегов контейнера,
// media.Format.Tags знает только encoder
type probeOutput struct {
	media.Metadata
	Tags map[string]string `json:"-"`
}

func (p *probeOutput) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &p.Metadata); err != nil {
		return err
	}
	var raw struct {
		Format struct {
			Tags map[string]string `json:"tags"`
		} `json:"format"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Tags = raw.Format.Tags
	return nil
}

// extract читает длительность, битрейт, потоки и словарь тегов контейнера через ffprobe
func (m mediaFormat) extract(ctx context.Context, path string) (domain.Metadata, error) {
	if !available(m.tools.FFprobe) {
		return nil, fmt.Errorf("ffprobe not available")
	}

	out, err := m.tools.run(ctx, m.tools.FFprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe media: %w", err)
	}

	var probe probeOutput
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return mediaMetadata(probe), nil
}

func mediaMetadata(probe probeOutput) domain.Metadata {
	meta := domain.Metadata{}
	put(meta, "Format", probe.Format.FormatName)
	put(meta, "Duration", probe.Format.Duration)
	put(meta, "AvgBitrate", probe.Format.BitRate)
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			put(meta, "VideoCodec", stream.CodecName)
			put(meta, "ImageWidth", stream.Width)
			put(meta, "ImageHeight", stream.Height)
		case "audio":
			put(meta, "AudioCodec", stream.CodecName)
		}
	}
	for key, value := range probe.Tags {
		put(meta, "Tag:"+key, value)
	}
	return meta
}

// strip переупаковывает потоки без перекодирования, отбрасывая глобальные и потоковые метаданные
func (m mediaFormat) strip(ctx context.Context, in, out string) error {
	if !available(m.tools.FFmpeg) {
		return fmt.Errorf("ffmpeg not available")
	}
	_, err := m.tools.run(ctx, m.tools.FFmpeg,
		"-y",
		"-v", "error",
		"-i", in,
		"-map", "0",
		"-map_metadata", "-1",
		"-map_chapters", "-1",
		"-c", "copy",
		out)
	return err
}
