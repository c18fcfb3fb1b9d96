package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx", "xls"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	var body strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		if body.Len() > 0 {
			body.WriteString("\n\n")
		}
		body.WriteString("## " + sheet + "\n")
		for _, row := range rows {
			body.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
	}

	ext := "xlsx"
	if strings.HasSuffix(strings.ToLower(path), ".xls") {
		ext = "xls"
	}
	return &ParseResult{Body: body.String(), FileType: ext, Method: "native"}, nil
}
