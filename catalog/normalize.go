package catalog

import (
	"fmt"
	"strings"
	"unicode"
)

var partNumberReplacer = strings.NewReplacer(
	"/", "%2F",
	"+", "%2B",
	"&", "%26",
	"?", "%3F",
	"=", "%3D",
	"#", "%23",
	";", "%3B",
	"$", "%24",
	",", "%2C",
	" ", "%20",
	"<", "%3C",
	">", "%3E",
)

// EncodePartNumber prepares a catalog number for the details path. The endpoint
// mishandles raw slashes, so characters are substituted first and the result is
// escaped again byte by byte (only RFC 3986 unreserved characters survive).
func EncodePartNumber(partNumber string) string {
	return escapeAll(partNumberReplacer.Replace(partNumber))
}

func escapeAll(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

var catalogNumberMarkers = []string{"-ND", "CT-ND", "TR-ND", "DKR-ND", "-1-ND"}

// IsCatalogNumber guesses whether s is a distributor part number rather than a
// manufacturer number.
func IsCatalogNumber(s string) bool {
	if s == "" {
		return false
	}
	r := []rune(s)
	if len(r) > 2 && unicode.IsDigit(r[0]) {
		head := r
		if len(head) > 5 {
			head = head[:5]
		}
		if strings.ContainsRune(string(head), '-') {
			return true
		}
	}
	for _, m := range catalogNumberMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func (p apiProduct) manufacturerNumber() string {
	if v := p.ManufacturerProductNumber.String(); v != "" {
		return v
	}
	return p.ManufacturerPartNumber.String()
}

// searchManufacturerNumber is the keyword-search order: the older field wins.
func (p apiProduct) searchManufacturerNumber() string {
	if v := p.ManufacturerPartNumber.String(); v != "" {
		return v
	}
	return p.ManufacturerProductNumber.String()
}

// detailsDescription follows the product-details shape: Description first.
func (p apiProduct) detailsDescription() string {
	if p.Description.Text != "" {
		return p.Description.Text
	}
	if v := p.ProductDescription.String(); v != "" {
		return v
	}
	return NoDescription
}

// searchDescription follows the keyword-search shape: ProductDescription first.
func (p apiProduct) searchDescription() string {
	if v := p.ProductDescription.String(); v != "" {
		return v
	}
	if p.Description.Text != "" {
		return p.Description.Text
	}
	if v := p.DetailedDescription.String(); v != "" {
		return v
	}
	return p.Description.Detailed
}

// canonicalNumber picks the catalog number of a search hit. Manufacturer
// searches only carry numbers on the variations; cut tape wins there.
func (p apiProduct) canonicalNumber() string {
	if v := p.DigiKeyPartNumber.String(); v != "" {
		return v
	}
	if len(p.ProductVariations) == 0 {
		return ""
	}
	for _, v := range p.ProductVariations {
		if strings.EqualFold(v.PackageType.Name.String(), "cut tape (ct)") && v.DigiKeyProductNumber.String() != "" {
			return v.DigiKeyProductNumber.String()
		}
	}
	return p.ProductVariations[0].DigiKeyProductNumber.String()
}

// normalizeSearch turns raw hits into rows: one canonical row per product,
// deduplicated by catalog number, followed by one row per packaging variation
// not already listed.
func normalizeSearch(products []apiProduct) []SearchResult {
	results := make([]SearchResult, 0, len(products))
	seen := make(map[string]bool)

	for _, p := range products {
		number := p.canonicalNumber()
		mpn := p.searchManufacturerNumber()
		if number == "" && mpn == "" {
			continue
		}
		if number != "" {
			if seen[number] {
				continue
			}
			seen[number] = true
		}
		desc := p.searchDescription()
		if desc == "" {
			desc = NoDescription
		}
		results = append(results, SearchResult{
			CatalogNumber:      number,
			ManufacturerNumber: mpn,
			Description:        desc,
		})
	}

	for _, p := range products {
		if len(p.ProductVariations) == 0 {
			continue
		}
		mpn := p.searchManufacturerNumber()
		base := p.Description.Text
		if base == "" {
			base = p.ProductDescription.String()
		}
		for _, v := range p.ProductVariations {
			number := v.DigiKeyProductNumber.String()
			if number == "" || seen[number] {
				continue
			}
			seen[number] = true
			desc := base
			if pkg := v.PackageType.Name.String(); pkg != "" {
				desc = fmt.Sprintf("%s (%s)", base, pkg)
			}
			results = append(results, SearchResult{
				CatalogNumber:      number,
				ManufacturerNumber: mpn,
				Description:        desc,
			})
		}
	}
	return results
}
