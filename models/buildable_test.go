package models

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func entry(required, available int) *BomEntry {
	return &BomEntry{QuantityRequired: required, Part: &Part{Quantity: available, PartNumber: "P"}}
}

func TestBuildableCount(t *testing.T) {
	if got := buildableCount(nil); got != nil {
		t.Fatalf("no entries: got %v, want nil", *got)
	}

	cases := []struct {
		name    string
		entries []*BomEntry
		want    int
	}{
		{name: "limited by scarcest part", entries: []*BomEntry{entry(2, 10), entry(3, 7)}, want: 2},
		{name: "nothing in stock", entries: []*BomEntry{entry(1, 0), entry(1, 100)}, want: 0},
		{name: "exact fit", entries: []*BomEntry{entry(4, 8)}, want: 2},
		{name: "invalid requirement ignored", entries: []*BomEntry{entry(0, 0), entry(1, 5)}, want: 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := buildableCount(tc.entries)
			if got == nil || *got != tc.want {
				t.Fatalf("buildableCount = %v, want %d", got, tc.want)
			}
		})
	}
}

func TestBuildablePercentage(t *testing.T) {
	cases := []struct {
		name    string
		entries []*BomEntry
		want    int
	}{
		{name: "empty", want: 0},
		{name: "all available", entries: []*BomEntry{entry(2, 2), entry(1, 50)}, want: 100},
		{name: "capped per line", entries: []*BomEntry{entry(1, 10), entry(4, 0)}, want: 50},
		{name: "thirds", entries: []*BomEntry{entry(3, 1)}, want: 33},
		// (100 + 25) / 2 = 62.5 rounds to even
		{name: "half rounds to even", entries: []*BomEntry{entry(1, 1), entry(4, 1)}, want: 62},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildablePercentage(tc.entries); got != tc.want {
				t.Fatalf("buildablePercentage = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPartStatus(t *testing.T) {
	cases := []struct {
		available int
		required  []int
		want      string
	}{
		{available: 10, required: nil, want: ""},
		{available: 1, required: []int{2}, want: PartStatusMissing},
		{available: 3, required: []int{2}, want: PartStatusLow},
		{available: 4, required: []int{2}, want: PartStatusOK},
		// one device short makes the part missing
		{available: 5, required: []int{1, 6}, want: PartStatusMissing},
	}
	for _, tc := range cases {
		if got := partStatus(tc.available, tc.required); got != tc.want {
			t.Fatalf("partStatus(%d, %v) = %q, want %q", tc.available, tc.required, got, tc.want)
		}
	}
}

func TestMissingPartsSortedByShortfall(t *testing.T) {
	entries := []*BomEntry{
		{PartId: 1, QuantityRequired: 2, Part: &Part{PartNumber: "A", Quantity: 1}},
		{PartId: 2, QuantityRequired: 10, Part: &Part{PartNumber: "B", Quantity: 0}},
		{PartId: 3, QuantityRequired: 1, Part: &Part{PartNumber: "C", Quantity: 5}},
	}
	got := missingParts(entries)
	if len(got) != 2 {
		t.Fatalf("missing = %+v", got)
	}
	if got[0].PartNumber != "B" || got[0].Missing != 10 || got[1].PartNumber != "A" || got[1].Missing != 1 {
		t.Fatalf("order = %+v, %+v", got[0], got[1])
	}
}

func TestMissingPartsWorkbook(t *testing.T) {
	report := &MissingPartsReport{
		Device: "Board A",
		Parts:  []*MissingPart{{PartNumber: "LM358DR", Description: "op amp", Required: 4, Available: 1, Missing: 3}},
	}
	data, err := missingPartsWorkbook(report)
	if err != nil {
		t.Fatalf("missingPartsWorkbook: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(missingPartsSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "Part Number" || rows[1][0] != "LM358DR" || rows[1][4] != "3" {
		t.Fatalf("rows = %v", rows)
	}
}
