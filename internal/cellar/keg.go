package cellar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/tapline/internal/formula"
	"github.com/blackwell-systems/tapline/internal/pkgversion"
)

// Keg is one installed package: a single versioned directory under the
// cellar. tapline keeps at most one keg per package name in the index;
// older version directories may remain on disk after upgrades.
type Keg struct {
	Name             string
	Version          string
	Revision         int
	Variant          formula.SpecVariant
	Tap              string
	KegOnly          bool
	Linked           bool
	Requested        bool
	PouredFromBottle bool
	Options          []string
	InstalledAt      time.Time

	// Path is the keg directory, <root>/cellar/<name>/<version>.
	Path string
}

// PkgVersion returns the versioned directory name for the keg.
func (k *Keg) PkgVersion() string {
	return pkgversion.PkgVersion{Version: k.Version, Revision: k.Revision}.String()
}

// ReceiptName is the metadata file written into every keg directory.
// Receipts are the durable record; the SQLite index is rebuilt from them.
const ReceiptName = "receipt.json"

const receiptSchemaVersion = 1

// Receipt records how a keg came to be.
type Receipt struct {
	SchemaVersion int `json:"schema_version"`

	Name     string              `json:"name"`
	FullName string              `json:"full_name"`
	Tap      string              `json:"tap,omitempty"`
	Version  string              `json:"version"`
	Revision int                 `json:"revision,omitempty"`
	Variant  formula.SpecVariant `json:"variant"`

	KegOnly          bool     `json:"keg_only,omitempty"`
	Requested        bool     `json:"requested,omitempty"`
	PouredFromBottle bool     `json:"poured_from_bottle"`
	Options          []string `json:"options,omitempty"`

	RuntimeDependencies []ReceiptDependency `json:"runtime_dependencies,omitempty"`

	Source      ReceiptSource `json:"source"`
	InstalledAt time.Time     `json:"installed_at"`
}

// ReceiptDependency pins the dependency versions a keg was installed
// against.
type ReceiptDependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Tag     string `json:"tag"`
}

// ReceiptSource records where the keg's payload came from.
type ReceiptSource struct {
	Strategy string `json:"strategy"` // "bottle" or "source"
	URL      string `json:"url,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
}

// NewReceipt fills a receipt from a keg and its pinned dependencies.
func NewReceipt(k *Keg, fullName string, deps []ReceiptDependency, src ReceiptSource) *Receipt {
	return &Receipt{
		SchemaVersion:       receiptSchemaVersion,
		Name:                k.Name,
		FullName:            fullName,
		Tap:                 k.Tap,
		Version:             k.Version,
		Revision:            k.Revision,
		Variant:             k.Variant,
		KegOnly:             k.KegOnly,
		Requested:           k.Requested,
		PouredFromBottle:    k.PouredFromBottle,
		Options:             k.Options,
		RuntimeDependencies: deps,
		Source:              src,
		InstalledAt:         k.InstalledAt,
	}
}

// WriteReceipt writes the receipt into a keg directory.
func WriteReceipt(kegPath string, r *Receipt) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling receipt for %s: %w", r.Name, err)
	}
	path := filepath.Join(kegPath, ReceiptName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing receipt %s: %w", path, err)
	}
	return nil
}

// ReadReceipt loads a receipt from a keg directory.
func ReadReceipt(kegPath string) (*Receipt, error) {
	path := filepath.Join(kegPath, ReceiptName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing receipt %s: %w", path, err)
	}
	if r.Variant == "" {
		r.Variant = formula.SpecStable
	}
	return &r, nil
}

// kegFromReceipt rebuilds the in-memory keg for a receipt found at
// kegPath. The linked flag is not recorded in receipts; scans restore it
// from the prefix.
func kegFromReceipt(kegPath string, r *Receipt) *Keg {
	return &Keg{
		Name:             r.Name,
		Version:          r.Version,
		Revision:         r.Revision,
		Variant:          r.Variant,
		Tap:              r.Tap,
		KegOnly:          r.KegOnly,
		Requested:        r.Requested,
		PouredFromBottle: r.PouredFromBottle,
		Options:          r.Options,
		InstalledAt:      r.InstalledAt,
		Path:             kegPath,
	}
}
