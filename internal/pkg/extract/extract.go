// Package extract turns uploaded files into auxiliary conversation context.
package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"gopherai-search/internal/model"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file is empty")
	ErrNoText          = errors.New("no extractable text")
)

// Supported reports whether the file name has an accepted extension.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".md", ".csv":
		return true
	}
	return false
}

// File builds the aux context for one upload: documents fill
// DocumentText, .csv files fill Dataset.
func File(name string, data []byte) (*model.AuxContext, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	base := filepath.Base(name)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text, err := PDFText(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return documentContext(base, text)
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: %s is not valid utf-8", ErrUnsupportedType, base)
		}
		return documentContext(base, string(data))
	case ".csv":
		ds, err := CSVDataset(base, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return &model.AuxContext{Dataset: ds}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, base)
	}
}

func documentContext(name, text string) (*model.AuxContext, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoText
	}
	return &model.AuxContext{DocumentName: name, DocumentText: text}, nil
}

// PDFText extracts the plain text of every page.
func PDFText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pdf failed: %w", err)
	}
	if len(b) == 0 {
		return "", ErrEmptyFile
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text failed: %w", err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	return string(out), nil
}

// CSVDataset reads a header row followed by data rows. Ragged rows are kept
// as-is; blank lines are skipped.
func CSVDataset(name string, r io.Reader) (*model.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header failed: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		columns[i] = h
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row failed: %w", err)
		}
		if blank(record) {
			continue
		}
		rows = append(rows, record)
	}
	return &model.Dataset{Name: name, Columns: columns, Rows: rows}, nil
}

func blank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
