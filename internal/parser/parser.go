package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"docchat/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

type Parser interface {
	ParseFile(filePath string) (models.Document, error)
}

type extractFunc func(filePath string) (string, map[string]string, error)

var extractors = map[string]extractFunc{
	".pdf":      parsePDF,
	".docx":     parseDOCX,
	".pptx":     parsePPTX,
	".xlsx":     parseXLSX,
	".xlsm":     parseXLSM,
	".md":       parseMarkdown,
	".markdown": parseMarkdown,
	".txt":      parseText,
}

// FileParser dispatches on the file extension.
type FileParser struct{}

func New() *FileParser {
	return &FileParser{}
}

// Supported reports whether files with this extension can be parsed
func Supported(filePath string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(filePath))]
	return ok
}

func (p *FileParser) ParseFile(filePath string) (models.Document, error) {
	return ParseFile(filePath)
}

// ParseFile extracts the plain text of one file. Every failure is wrapped in models.ErrLoad.
func ParseFile(filePath string) (doc models.Document, err error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	extract, ok := extractors[ext]
	if !ok {
		return doc, fmt.Errorf("%w: unsupported file format %q: %s", models.ErrLoad, ext, filePath)
	}

	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: corrupt document: %v", models.ErrLoad, filePath, r)
		}
	}()

	content, meta, err := extract(filePath)
	if err != nil {
		return doc, fmt.Errorf("%w: %s: %w", models.ErrLoad, filePath, err)
	}
	if meta == nil {
		meta = make(map[string]string)
	}
	meta[models.MetaSource] = filePath
	meta[models.MetaFormat] = strings.TrimPrefix(ext, ".")

	return models.Document{Content: content, Metadata: meta}, nil
}

func parsePDF(filePath string) (string, map[string]string, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	var pages []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", nil, fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) != "" {
			pages = append(pages, strings.TrimSpace(pageText))
		}
	}
	return strings.Join(pages, "\n\n"), map[string]string{models.MetaPages: strconv.Itoa(numPages)}, nil
}

func parseDOCX(filePath string) (string, map[string]string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", nil, err
	}
	defer r.Close()

	// GetContent returns the raw document.xml
	text, err := xmlText(r.Editable().GetContent())
	if err != nil {
		return "", nil, err
	}
	return text, nil, nil
}

func parsePPTX(filePath string) (string, map[string]string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		name := strings.TrimPrefix(file.Name, "ppt/slides/slide")
		if name == file.Name || !strings.HasSuffix(name, ".xml") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(name, ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var parts []string
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return "", nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		slideText, err := xmlText(string(data))
		if err != nil {
			return "", nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		if slideText != "" {
			parts = append(parts, slideText)
		}
	}
	return strings.Join(parts, "\n\n"), map[string]string{"slides": strconv.Itoa(len(slides))}, nil
}

func parseXLSX(filePath string) (string, map[string]string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return "", nil, err
	}

	var text strings.Builder
	for _, sheet := range f.Sheets {
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t"))
			text.WriteString("\n")
		}
		text.WriteString("\n")
	}
	return strings.TrimSpace(text.String()), map[string]string{"sheets": strconv.Itoa(len(f.Sheets))}, nil
}

func parseXLSM(filePath string) (string, map[string]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var text strings.Builder
	for _, sheetName := range sheets {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return "", nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		text.WriteString("\n")
	}
	return strings.TrimSpace(text.String()), map[string]string{"sheets": strconv.Itoa(len(sheets))}, nil
}

func parseText(filePath string) (string, map[string]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", nil, err
	}
	return string(data), nil, nil
}
