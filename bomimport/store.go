package bomimport

import (
	"context"

	"github.com/AnimaI/SMD-Manager/catalog"
)

// PartRecord is the importer's view of an inventory part. ID is zero for
// parts that do not exist yet.
type PartRecord struct {
	ID            int
	PartNumber    string
	Description   string
	CatalogNumber string
}

type BomLine struct {
	Part     PartRecord
	Quantity int
}

type ReplaceResult struct {
	DeviceID int
	NewParts int
}

// Store is the relational side of an import.
type Store interface {
	// FindPartByCatalogNumber returns nil, nil when no part matches.
	FindPartByCatalogNumber(ctx context.Context, catalogNumber string) (*PartRecord, error)
	// ReplaceBom finds or creates the device, creates missing parts and
	// replaces the device's associations with lines, atomically.
	ReplaceBom(ctx context.Context, device string, lines []BomLine) (*ReplaceResult, error)
}

// Resolver looks up parts that are not in the inventory yet.
type Resolver interface {
	FetchByID(ctx context.Context, catalogNumber string) (*catalog.Product, error)
}
