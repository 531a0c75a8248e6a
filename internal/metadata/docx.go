package metadata

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"fidera/internal/domain"
)

const (
	docxCorePart   = "docProps/core.xml"
	docxAppPart    = "docProps/app.xml"
	docxCustomPart = "docProps/custom.xml"
)

// Пустые наборы свойств, которыми заменяются части docProps
var docxEmptyParts = map[string]string{
	docxCorePart: xml.Header + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:dcmitype="http://purl.org/dc/dcmitype/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"></cp:coreProperties>`,
	docxAppPart: xml.Header + `<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties" ` +
		`xmlns:vt="http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes"></Properties>`,
	docxCustomPart: xml.Header + `<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/custom-properties" ` +
		`xmlns:vt="http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes"></Properties>`,
}

// Время модификации всех частей очищенного архива
var docxEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Имена core-свойств в терминах exiftool
var docxFieldNames = map[string]string{
	"created":  "CreateDate",
	"modified": "ModifyDate",
	"revision": "RevisionNumber",
}

type docxFormat struct{}

func (docxFormat) name() string { return "docx" }

// extract читает core.xml (автор, даты, ревизия) и app.xml (приложение, компания, статистика)
func (docxFormat) extract(_ context.Context, path string) (domain.Metadata, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	meta := domain.Metadata{
		"FileType": "DOCX",
		"MIMEType": docxMIME,
	}
	found := false
	for _, f := range zr.File {
		if f.Name != docxCorePart && f.Name != docxAppPart {
			continue
		}
		found = true
		if err := readPropertyPart(f, meta); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f.Name, err)
		}
	}
	if !found {
		return nil, fmt.Errorf("docx has no document properties")
	}
	return meta, nil
}

// readPropertyPart собирает текстовые элементы первого уровня под корнем
func readPropertyPart(f *zip.File, meta domain.Metadata) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	depth := 0
	var field string
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				field = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth >= 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				if value := strings.TrimSpace(text.String()); value != "" {
					meta[docxFieldName(field)] = value
				}
			}
			depth--
		}
	}
}

func docxFieldName(local string) string {
	if name, ok := docxFieldNames[local]; ok {
		return name
	}
	runes := []rune(local)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// strip копирует все части архива, заменяя docProps пустыми наборами свойств
func (docxFormat) strip(_ context.Context, in, out string) (err error) {
	zr, err := zip.OpenReader(in)
	if err != nil {
		return fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	dst, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	defer func() {
		if cerr := dst.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(dst)
	for _, f := range zr.File {
		header := f.FileHeader
		header.Modified = docxEpoch
		header.Comment = ""
		header.Extra = nil

		if empty, ok := docxEmptyParts[f.Name]; ok {
			w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: docxEpoch})
			if err != nil {
				return err
			}
			if _, err := io.WriteString(w, empty); err != nil {
				return err
			}
			continue
		}

		w, err := zw.CreateHeader(&header)
		if err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		_, err = io.Copy(w, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	zw.SetComment("")
	return zw.Close()
}
