package bomimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/AnimaI/SMD-Manager/utils"
)

// The device line must appear within this many lines from the top.
const deviceLineWindow = 5

const (
	MaxDeviceNameLength = 100
	MaxIdentifierLength = 100
)

var (
	ErrEmptyFile         = errors.New("the uploaded file is empty")
	ErrNoDeviceLine      = errors.New("no device name found (expected a 'Device,<name>' line within the first 5 lines)")
	ErrMissingColumns    = errors.New("BOM file must contain columns for 'DigiKey Number' and 'Quantity'")
	ErrUnsupportedFormat = errors.New("only CSV or XLSX files are supported")
)

// Header synonyms, matched as case-insensitive substrings of the header cell.
var (
	identifierHeaders = []string{"digikey", "digi-key", "dk", "dk-no"}
	quantityHeaders   = []string{"quantity", "qty"}
)

// Row is one data record that carries a non-empty identifier.
type Row struct {
	// Line is the 1-based line (or sheet row) the record starts on.
	Line int
	// Index is the zero-based position among all data records, including
	// records that were skipped.
	Index         int
	CatalogNumber string
	Quantity      string
}

type ParsedBOM struct {
	DeviceName      string
	Delimiter       rune
	IdentifierIndex int
	QuantityIndex   int
	Rows            []Row
	// TotalRows counts every data record below the header.
	TotalRows int
}

// ParseFile dispatches on the filename extension. Files without an extension
// are treated as delimited text.
func ParseFile(filename string, data []byte) (*ParsedBOM, error) {
	switch utils.FileExtension(filename) {
	case "xlsx":
		return ParseXLSX(data)
	case "csv", "txt", "":
		return Parse(data)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// Parse reads a delimited BOM export. Invalid UTF-8 sequences are replaced
// rather than rejected.
func Parse(data []byte) (*ParsedBOM, error) {
	text := strings.ToValidUTF8(string(data), "\uFFFD")
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyFile
	}
	lines := strings.Split(text, "\n")

	device, at, err := findDeviceLine(lines)
	if err != nil {
		return nil, err
	}

	var body []string
	var lineNos []int
	for i, line := range lines[at+1:] {
		if strings.TrimSpace(line) != "" {
			body = append(body, line)
			lineNos = append(lineNos, at+2+i)
		}
	}
	if len(body) == 0 {
		return nil, ErrMissingColumns
	}

	delim := ';'
	if strings.Contains(body[0], ",") {
		delim = ','
	}

	r := csv.NewReader(strings.NewReader(strings.Join(body, "\n")))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var records [][]string
	var recordLines []int
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		pos, _ := r.FieldPos(0)
		records = append(records, rec)
		recordLines = append(recordLines, lineNos[pos-1])
	}

	bom, err := fromRecords(device, records, recordLines)
	if err != nil {
		return nil, err
	}
	bom.Delimiter = delim
	return bom, nil
}

// ParseXLSX reads the first worksheet of an Excel workbook using the same
// layout rules as Parse.
func ParseXLSX(data []byte) (*ParsedBOM, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet: %w", err)
	}

	device := ""
	at := -1
	for i := 0; i < len(rows) && i < deviceLineWindow; i++ {
		row := rows[i]
		if len(row) >= 2 && strings.EqualFold(strings.TrimSpace(row[0]), "device") {
			device, at = strings.TrimSpace(row[1]), i
			break
		}
	}
	if at < 0 || device == "" {
		return nil, ErrNoDeviceLine
	}
	if err := validateDeviceName(device); err != nil {
		return nil, err
	}

	var records [][]string
	var recordLines []int
	for i, row := range rows[at+1:] {
		if !blankRecord(row) {
			records = append(records, row)
			recordLines = append(recordLines, at+2+i)
		}
	}
	return fromRecords(device, records, recordLines)
}

// ParseQuantity converts a quantity cell. The second result is false when the
// cell is not a positive integer, in which case the quantity defaults to 1.
func ParseQuantity(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 1, false
	}
	return n, true
}

func findDeviceLine(lines []string) (string, int, error) {
	for i := 0; i < len(lines) && i < deviceLineWindow; i++ {
		line := strings.TrimSpace(lines[i])
		sep := strings.IndexAny(line, ",;")
		if sep < 0 || !strings.EqualFold(unquote(line[:sep]), "device") {
			continue
		}
		name := line[sep+1:]
		if next := strings.IndexAny(name, ",;"); next >= 0 {
			name = name[:next]
		}
		name = unquote(name)
		if name == "" {
			return "", 0, ErrNoDeviceLine
		}
		if err := validateDeviceName(name); err != nil {
			return "", 0, err
		}
		return name, i, nil
	}
	return "", 0, ErrNoDeviceLine
}

func fromRecords(device string, records [][]string, lines []int) (*ParsedBOM, error) {
	if len(records) == 0 {
		return nil, ErrMissingColumns
	}
	idCol, qtyCol := detectColumns(records[0])
	if idCol < 0 || qtyCol < 0 {
		return nil, ErrMissingColumns
	}

	bom := &ParsedBOM{
		DeviceName:      device,
		IdentifierIndex: idCol,
		QuantityIndex:   qtyCol,
		TotalRows:       len(records) - 1,
	}
	for i, rec := range records[1:] {
		if len(rec) <= idCol || len(rec) <= qtyCol {
			continue
		}
		id := strings.TrimSpace(rec[idCol])
		if id == "" {
			continue
		}
		bom.Rows = append(bom.Rows, Row{
			Line:          lines[i+1],
			Index:         i,
			CatalogNumber: id,
			Quantity:      strings.TrimSpace(rec[qtyCol]),
		})
	}
	return bom, nil
}

// detectColumns picks the identifier and quantity columns from the header.
// When several cells match, the last one wins. A cell matching both lists is
// taken as the identifier column.
func detectColumns(header []string) (idCol, qtyCol int) {
	idCol, qtyCol = -1, -1
	for i, cell := range header {
		h := strings.ToLower(strings.TrimSpace(cell))
		switch {
		case containsAny(h, identifierHeaders):
			idCol = i
		case containsAny(h, quantityHeaders):
			qtyCol = i
		}
	}
	return idCol, qtyCol
}

func validateDeviceName(name string) error {
	if err := utils.ValidateInput(name, MaxDeviceNameLength); err != nil {
		return fmt.Errorf("invalid device name: %w", err)
	}
	return nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func unquote(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
}

func blankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
