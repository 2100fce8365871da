package catalog

import (
	"encoding/json"
	"testing"
)

func TestEncodePartNumber(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"296-1234-1-ND", "296-1234-1-ND"},
		{"MCP1824T-0802E/OTCT-ND", "MCP1824T-0802E%252FOTCT-ND"},
		{"A+B", "A%252BB"},
		{"R 10k", "R%252010k"},
		{"X<1>", "X%253C1%253E"},
		{"a:b@c", "a%3Ab%40c"},
		{"50%", "50%25"},
		{"ü", "%C3%BC"},
	}
	for _, tc := range cases {
		if got := EncodePartNumber(tc.in); got != tc.expected {
			t.Fatalf("EncodePartNumber(%q) expected %s, got %s", tc.in, tc.expected, got)
		}
	}
}

func TestIsCatalogNumber(t *testing.T) {
	cases := []struct {
		in       string
		expected bool
	}{
		{"296-1234-1-ND", true},
		{"1-2", true},
		{"12345-6", false},
		{"12", false},
		{"LM358DR", false},
		{"LM358DRCT-ND", true},
		{"RMCF0805JT10K0TR-ND", true},
		{"ABCDKR-ND", true},
		{"", false},
		{"9ab-x", true},
	}
	for _, tc := range cases {
		if got := IsCatalogNumber(tc.in); got != tc.expected {
			t.Fatalf("IsCatalogNumber(%q) expected %v, got %v", tc.in, tc.expected, got)
		}
	}
}

func TestDetailsNormalizationShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		mpn  string
		desc string
	}{
		{"v4 nested description", `{"Product":{"ManufacturerProductNumber":"LM358","Description":{"ProductDescription":"IC OPAMP"}}}`, "LM358", "IC OPAMP"},
		{"v3 flat description", `{"Product":{"ManufacturerPartNumber":"NE555","Description":"Timer"}}`, "NE555", "Timer"},
		{"product description only", `{"Product":{"ManufacturerPartNumber":"X","ProductDescription":"Plain"}}`, "X", "Plain"},
		{"nothing usable", `{"Product":{"Description":{"Other":1}}}`, "", NoDescription},
	}
	for _, tc := range cases {
		var parsed productDetailsResponse
		if err := json.Unmarshal([]byte(tc.body), &parsed); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if got := parsed.Product.manufacturerNumber(); got != tc.mpn {
			t.Fatalf("%s: mpn expected %q, got %q", tc.name, tc.mpn, got)
		}
		if got := parsed.Product.detailsDescription(); got != tc.desc {
			t.Fatalf("%s: description expected %q, got %q", tc.name, tc.desc, got)
		}
	}
}

func TestNormalizeSearchPrefersCutTape(t *testing.T) {
	body := `[{
		"ManufacturerProductNumber": "LM358DR",
		"Description": {"ProductDescription": "IC OPAMP GP 2 CIRCUIT 8SOIC"},
		"ProductVariations": [
			{"DigiKeyProductNumber": "296-1234-2-ND", "PackageType": {"Name": "Tape & Reel (TR)"}},
			{"DigiKeyProductNumber": "296-1234-1-ND", "PackageType": {"Name": "Cut Tape (CT)"}}
		]
	}]`
	var products []apiProduct
	if err := json.Unmarshal([]byte(body), &products); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	results := normalizeSearch(products)
	if len(results) != 2 {
		t.Fatalf("expected canonical row plus one variation, got %+v", results)
	}
	if results[0].CatalogNumber != "296-1234-1-ND" || results[0].ManufacturerNumber != "LM358DR" {
		t.Fatalf("cut tape variant should be canonical, got %+v", results[0])
	}
	if results[1].CatalogNumber != "296-1234-2-ND" || results[1].Description != "IC OPAMP GP 2 CIRCUIT 8SOIC (Tape & Reel (TR))" {
		t.Fatalf("unexpected variation row %+v", results[1])
	}
}

func TestNormalizeSearchDeduplicates(t *testing.T) {
	products := []apiProduct{
		{DigiKeyPartNumber: "A-ND", ManufacturerPartNumber: "A", ProductDescription: "first"},
		{DigiKeyPartNumber: "A-ND", ManufacturerPartNumber: "A", ProductDescription: "second"},
		{DigiKeyPartNumber: "B-ND", ManufacturerPartNumber: "B"},
		{},
	}
	results := normalizeSearch(products)
	if len(results) != 2 {
		t.Fatalf("expected 2 rows, got %+v", results)
	}
	if results[0].Description != "first" {
		t.Fatalf("first occurrence must win, got %q", results[0].Description)
	}
	if results[1].Description != NoDescription {
		t.Fatalf("missing description should fall back, got %q", results[1].Description)
	}
}

func TestManufacturerNumberOrderDiffersBySource(t *testing.T) {
	p := apiProduct{
		DigiKeyPartNumber:         "C-ND",
		ManufacturerPartNumber:    "OLD-MPN",
		ManufacturerProductNumber: "NEW-MPN",
	}
	if got := p.manufacturerNumber(); got != "NEW-MPN" {
		t.Fatalf("details should prefer ManufacturerProductNumber, got %q", got)
	}
	results := normalizeSearch([]apiProduct{p})
	if len(results) != 1 || results[0].ManufacturerNumber != "OLD-MPN" {
		t.Fatalf("search should prefer ManufacturerPartNumber, got %+v", results)
	}
}
