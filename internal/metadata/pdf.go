package metadata

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"fidera/internal/domain"
)

type pdfFormat struct{}

func (pdfFormat) name() string { return "pdf" }

// extract читает словарь Info, число страниц и признак шифрования
func (pdfFormat) extract(_ context.Context, path string) (domain.Metadata, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to count pdf pages: %w", err)
	}

	meta := domain.Metadata{
		"FileType":  "PDF",
		"MIMEType":  "application/pdf",
		"PageCount": fmt.Sprint(ctx.PageCount),
		"Encrypted": fmt.Sprint(ctx.Encrypt != nil),
	}
	put(meta, "Title", ctx.Title)
	put(meta, "Subject", ctx.Subject)
	put(meta, "Author", ctx.Author)
	put(meta, "Creator", ctx.Creator)
	put(meta, "Keywords", ctx.Keywords)
	// pdfcpu при записи сам проставляет Producer и даты, после очистки это штамп очистителя
	if !writtenByPdfcpu(ctx.Producer) {
		put(meta, "Producer", ctx.Producer)
		put(meta, "CreateDate", ctx.XRefTable.CreationDate)
		put(meta, "ModifyDate", ctx.ModDate)
	}
	for key, value := range ctx.Properties {
		put(meta, key, value)
	}
	if version := pdfHeaderVersion(path); version != "" {
		meta["PDFVersion"] = version
	}
	return meta, nil
}

// strip пересобирает документ без словаря Info и XMP-потока каталога.
// В новом Info остаются только Producer и даты, которые pdfcpu пишет всегда.
func (pdfFormat) strip(_ context.Context, in, out string) error {
	ctx, err := api.ReadContextFile(in)
	if err != nil {
		return fmt.Errorf("failed to read pdf: %w", err)
	}

	ctx.Info = nil
	ctx.Title = ""
	ctx.Subject = ""
	ctx.Author = ""
	ctx.Creator = ""
	ctx.Producer = ""
	ctx.XRefTable.CreationDate = ""
	ctx.ModDate = ""
	ctx.Keywords = ""
	ctx.Properties = map[string]string{}

	root, err := ctx.Catalog()
	if err != nil {
		return fmt.Errorf("failed to read pdf catalog: %w", err)
	}
	root.Delete("Metadata")
	root.Delete("PieceInfo")

	if err := api.WriteContextFile(ctx, out); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

func writtenByPdfcpu(producer string) bool {
	return strings.HasPrefix(producer, "pdfcpu ")
}

// pdfHeaderVersion читает версию из заголовка %PDF-x.y
func pdfHeaderVersion(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "%PDF-") || len(line) < 8 {
		return ""
	}
	return line[5:8]
}
