package models

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const missingPartsSheet = "Missing Parts"

// ExportMissingPartsXlsx renders GetMissingParts as a spreadsheet.
func ExportMissingPartsXlsx(ctx context.Context, deviceId int) (string, []byte, error) {
	report, err := GetMissingParts(ctx, deviceId)
	if err != nil {
		return "", nil, err
	}
	data, err := missingPartsWorkbook(report)
	if err != nil {
		return "", nil, err
	}
	return report.Device, data, nil
}

func missingPartsWorkbook(report *MissingPartsReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", missingPartsSheet); err != nil {
		return nil, err
	}

	// Add headers
	headers := []interface{}{"Part Number", "Description", "Required", "Available", "Missing"}
	if err := f.SetSheetRow(missingPartsSheet, "A1", &headers); err != nil {
		return nil, err
	}

	// Add data
	for i, p := range report.Parts {
		row := []interface{}{p.PartNumber, p.Description, p.Required, p.Available, p.Missing}
		if err := f.SetSheetRow(missingPartsSheet, "A"+fmt.Sprint(i+2), &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
