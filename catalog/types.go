package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const NoDescription = "No description available"

// Product is the normalized result of a details lookup.
type Product struct {
	CatalogNumber      string    `json:"digikey_number"`
	ManufacturerNumber string    `json:"manufacturer_part_number"`
	Description        string    `json:"description"`
	Timestamp          time.Time `json:"timestamp"`
}

// SearchResult is one row of a keyword search.
type SearchResult struct {
	CatalogNumber      string `json:"digikey_number"`
	ManufacturerNumber string `json:"part_number"`
	Description        string `json:"description"`
}

type productDetailsResponse struct {
	Product *apiProduct `json:"Product"`
}

type keywordSearchResponse struct {
	Products       []apiProduct `json:"Products"`
	ProductDetails *apiProduct  `json:"ProductDetails"`
}

type keywordSearchRequest struct {
	Keywords                   string        `json:"Keywords"`
	Limit                      int           `json:"Limit"`
	SearchOptions              []string      `json:"SearchOptions"`
	ExcludeMarketplaceProducts bool          `json:"ExcludeMarketplaceProducts"`
	RecordCount                int           `json:"RecordCount"`
	RecordStartPosition        int           `json:"RecordStartPosition"`
	Filters                    searchFilters `json:"Filters"`
}

type searchFilters struct {
	// 2 = in stock + on order
	AvailabilityFilter int `json:"AvailabilityFilter"`
}

// apiProduct tolerates the v3 and v4 product shapes.
type apiProduct struct {
	DigiKeyPartNumber         looseString    `json:"DigiKeyPartNumber"`
	ManufacturerProductNumber looseString    `json:"ManufacturerProductNumber"`
	ManufacturerPartNumber    looseString    `json:"ManufacturerPartNumber"`
	ProductDescription        looseString    `json:"ProductDescription"`
	Description               descriptionRaw `json:"Description"`
	DetailedDescription       looseString    `json:"DetailedDescription"`
	ProductVariations         []apiVariation `json:"ProductVariations"`
}

type apiVariation struct {
	DigiKeyProductNumber looseString `json:"DigiKeyProductNumber"`
	PackageType          struct {
		Name looseString `json:"Name"`
	} `json:"PackageType"`
}

// looseString accepts strings and numbers and ignores any other JSON value.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			*s = looseString(strconv.FormatFloat(f, 'f', -1, 64))
		}
	}
	return nil
}

func (s looseString) String() string {
	return strings.TrimSpace(string(s))
}

// descriptionRaw is either a plain string or an object with ProductDescription
// (and, in v4, DetailedDescription).
type descriptionRaw struct {
	Text     string
	Detailed string
}

func (d *descriptionRaw) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		return json.Unmarshal(b, &d.Text)
	case '{':
		var obj struct {
			ProductDescription  looseString `json:"ProductDescription"`
			DetailedDescription looseString `json:"DetailedDescription"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil
		}
		d.Text = obj.ProductDescription.String()
		d.Detailed = obj.DetailedDescription.String()
	}
	return nil
}
