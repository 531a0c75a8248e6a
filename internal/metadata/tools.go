package metadata

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/rs/zerolog/log"

	"fidera/internal/config"
)

const defaultToolTimeout = time.Minute

// Tools описывает внешние утилиты. Пустой путь или отсутствие бинарника
// означает, что соответствующий шаг цепочки пропускается.
type Tools struct {
	Exiftool string
	FFprobe  string
	FFmpeg   string
	Timeout  time.Duration
}

func ToolsFromConfig(cfg config.MetadataConfig) Tools {
	return Tools{
		Exiftool: cfg.ExiftoolPath,
		FFprobe:  cfg.FFprobePath,
		FFmpeg:   cfg.FFmpegPath,
		Timeout:  cfg.ToolTimeout,
	}
}

func available(bin string) bool {
	if bin == "" {
		return false
	}
	_, err := exec.LookPath(bin)
	return err == nil
}

// run запускает утилиту и возвращает stdout; ненулевой код выхода считается ошибкой
func (t Tools) run(ctx context.Context, bin string, args ...string) (string, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Debug().Str("command", bin).Strs("args", args).Msg("executing")

	task := execute.ExecTask{
		Command:     bin,
		Args:        args,
		StreamStdio: false,
	}
	res, err := task.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", bin, err)
	}
	if res.ExitCode != 0 {
		return res.Stdout, fmt.Errorf("%s exited with code %d: %s", bin, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}
