package bomimport

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/AnimaI/SMD-Manager/utils"
)

func TestParseCommaSeparated(t *testing.T) {
	data := "Device,Board A,,\r\n" +
		"DigiKey Part Number,Manufacturer,Quantity\r\n" +
		"296-1234-1-ND,Texas Instruments,5\r\n" +
		"\r\n" +
		"311-1.00KHRCT-ND,Yageo,10\r\n"

	bom, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if bom.DeviceName != "Board A" {
		t.Fatalf("device = %q", bom.DeviceName)
	}
	if bom.Delimiter != ',' {
		t.Fatalf("delimiter = %q", bom.Delimiter)
	}
	if bom.IdentifierIndex != 0 || bom.QuantityIndex != 2 {
		t.Fatalf("columns = %d/%d", bom.IdentifierIndex, bom.QuantityIndex)
	}
	if bom.TotalRows != 2 || len(bom.Rows) != 2 {
		t.Fatalf("rows = %d total=%d", len(bom.Rows), bom.TotalRows)
	}
	first := bom.Rows[0]
	if first.CatalogNumber != "296-1234-1-ND" || first.Quantity != "5" || first.Line != 3 || first.Index != 0 {
		t.Fatalf("first row = %+v", first)
	}
	if got := bom.Rows[1].Line; got != 5 {
		t.Fatalf("second row line = %d, want 5", got)
	}
}

func TestParseSemicolonAndQuotes(t *testing.T) {
	data := "device;Board B\n" +
		"\"DK-No\";\"Qty\"\n" +
		"\"296-1234-1-ND\";\"3\"\n"

	bom, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if bom.DeviceName != "Board B" || bom.Delimiter != ';' {
		t.Fatalf("device=%q delimiter=%q", bom.DeviceName, bom.Delimiter)
	}
	if len(bom.Rows) != 1 || bom.Rows[0].CatalogNumber != "296-1234-1-ND" || bom.Rows[0].Quantity != "3" {
		t.Fatalf("rows = %+v", bom.Rows)
	}
}

func TestParseDeviceLinePosition(t *testing.T) {
	cases := []struct {
		name    string
		prefix  string
		wantErr error
	}{
		{name: "first line", prefix: ""},
		{name: "after preamble", prefix: "Exported BOM\n\nrev 3\n"},
		{name: "too far down", prefix: "a\nb\nc\nd\ne\n", wantErr: ErrNoDeviceLine},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := tc.prefix + "Device,Board C\nDigiKey,Qty\n296-1234-1-ND,1\n"
			bom, err := Parse([]byte(data))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if bom.DeviceName != "Board C" || len(bom.Rows) != 1 {
				t.Fatalf("bom = %+v", bom)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "empty", data: "  \n", wantErr: ErrEmptyFile},
		{name: "no device line", data: "DigiKey,Qty\n296-1234-1-ND,1\n", wantErr: ErrNoDeviceLine},
		{name: "empty device name", data: "Device,\nDigiKey,Qty\n", wantErr: ErrNoDeviceLine},
		{name: "missing quantity column", data: "Device,X\nDigiKey,Notes\n296-1234-1-ND,hi\n", wantErr: ErrMissingColumns},
		{name: "missing identifier column", data: "Device,X\nPart,Qty\nabc,1\n", wantErr: ErrMissingColumns},
		{name: "no header", data: "Device,X\n", wantErr: ErrMissingColumns},
		{name: "device name too long", data: "Device," + strings.Repeat("x", 101) + "\nDigiKey,Qty\n", wantErr: utils.ErrorInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestParseSkipsEmptyIdentifiersAndShortRows(t *testing.T) {
	data := "Device,Board D\n" +
		"Notes,DigiKey,Quantity\n" +
		"a,,4\n" +
		"b\n" +
		"c,296-1234-1-ND,abc\n"

	bom, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if bom.TotalRows != 3 {
		t.Fatalf("TotalRows = %d, want 3", bom.TotalRows)
	}
	if len(bom.Rows) != 1 {
		t.Fatalf("rows = %+v", bom.Rows)
	}
	if r := bom.Rows[0]; r.Index != 2 || r.Quantity != "abc" {
		t.Fatalf("row = %+v", r)
	}
}

func TestParseReplacesInvalidUTF8(t *testing.T) {
	data := []byte("Device,Pl\xe4tine\nDigiKey,Qty\n296-1234-1-ND,1\n")
	bom, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if bom.DeviceName != "Pl\uFFFDtine" {
		t.Fatalf("device = %q", bom.DeviceName)
	}
}

func TestDetectColumns(t *testing.T) {
	cases := []struct {
		header  []string
		id, qty int
	}{
		{header: []string{"DigiKey Part #", "Qty"}, id: 0, qty: 1},
		{header: []string{"Qty", "Digi-Key"}, id: 1, qty: 0},
		// last match wins
		{header: []string{"DigiKey", "Qty", "DK-No", "Quantity"}, id: 2, qty: 3},
		// a header matching both lists is the identifier
		{header: []string{"DK Qty", "Quantity"}, id: 0, qty: 1},
		{header: []string{"Reference", "Value"}, id: -1, qty: -1},
	}
	for _, tc := range cases {
		id, qty := detectColumns(tc.header)
		if id != tc.id || qty != tc.qty {
			t.Fatalf("detectColumns(%v) = %d/%d, want %d/%d", tc.header, id, qty, tc.id, tc.qty)
		}
	}
}

func TestParseQuantity(t *testing.T) {
	cases := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"5", 5, true},
		{" 7 ", 7, true},
		{"+2", 2, true},
		{"abc", 1, false},
		{"", 1, false},
		{"2.5", 1, false},
		{"0", 1, false},
		{"-3", 1, false},
	}
	for _, tc := range cases {
		got, ok := ParseQuantity(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseQuantity(%q) = %d,%v want %d,%v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseFileRejectsUnknownExtension(t *testing.T) {
	if _, err := ParseFile("bom.pdf", []byte("Device,X")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Device", "Board X"},
		{"DigiKey Part Number", "Description", "Quantity"},
		{"296-1234-1-ND", "op amp", 2},
		{},
		{"", "no id", 3},
		{"311-1.00KHRCT-ND", "resistor", 10},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	bom, err := ParseFile("board.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if bom.DeviceName != "Board X" {
		t.Fatalf("device = %q", bom.DeviceName)
	}
	if len(bom.Rows) != 2 {
		t.Fatalf("rows = %+v", bom.Rows)
	}
	if bom.Rows[1].CatalogNumber != "311-1.00KHRCT-ND" || bom.Rows[1].Quantity != "10" || bom.Rows[1].Line != 6 {
		t.Fatalf("second row = %+v", bom.Rows[1])
	}
}
