package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/photomosaic/internal/assign"
	"github.com/ironsheep/photomosaic/internal/imaging"
)

// File name suffixes of the intermediate records and the final image.
const (
	TargetSuffix  = ".target.json"
	MapSuffix     = ".map.json"
	CollageSuffix = ".collage.jpg"

	targetsDirSuffix  = ".targets"
	mapsDirSuffix     = ".maps"
	collagesDirSuffix = ".collages"

	recordFileMode = 0o644
	outputDirMode  = 0o755
)

// TargetRecord is a target grid together with the image it was sampled
// from.
type TargetRecord struct {
	Label  string                `json:"label"`
	Side   int                   `json:"side"`
	Colors []imaging.ColorVector `json:"colors"`
}

// Grid validates the record and returns its grid.
func (r TargetRecord) Grid() (imaging.TargetGrid, error) {
	return imaging.NewTargetGrid(r.Side, r.Colors)
}

// MapRecord is an assignment together with the image its target came from.
// Unassigned cells have an empty id and a null residual.
type MapRecord struct {
	Label     string     `json:"label"`
	Side      int        `json:"side"`
	Cells     []string   `json:"cells"`
	Residuals []*float64 `json:"residuals"`
	SOS       float64    `json:"sos"`
}

// NewMapRecord converts an assignment for storage.
func NewMapRecord(label string, a *assign.Assignment) MapRecord {
	rec := MapRecord{
		Label:     label,
		Side:      a.Side,
		Cells:     append([]string(nil), a.Cells...),
		Residuals: make([]*float64, len(a.Residuals)),
		SOS:       a.SumOfSquares(),
	}
	for i, r := range a.Residuals {
		if a.Cells[i] == assign.Unassigned || math.IsInf(r, 0) {
			continue
		}
		v := r
		rec.Residuals[i] = &v
	}
	return rec
}

// Validate checks the record's shape.
func (r MapRecord) Validate() error {
	if r.Side < 1 {
		return &imaging.DegenerateGridError{Side: r.Side, Reason: "map has no cells"}
	}
	if len(r.Cells) != r.Side*r.Side {
		return fmt.Errorf("map of side %d needs %d cells, got %d", r.Side, r.Side*r.Side, len(r.Cells))
	}
	if len(r.Residuals) != 0 && len(r.Residuals) != len(r.Cells) {
		return fmt.Errorf("map has %d cells but %d residuals", len(r.Cells), len(r.Residuals))
	}
	return nil
}

// SaveTarget writes rec as indented JSON, creating parent directories.
func SaveTarget(path string, rec TargetRecord) error {
	return writeRecord(path, rec)
}

// LoadTarget reads a target record and validates its grid.
func LoadTarget(path string) (TargetRecord, error) {
	var rec TargetRecord
	if err := readRecord(path, &rec); err != nil {
		return TargetRecord{}, err
	}
	if _, err := rec.Grid(); err != nil {
		return TargetRecord{}, fmt.Errorf("target record %s: %w", path, err)
	}
	return rec, nil
}

// SaveMap writes rec as indented JSON, creating parent directories.
func SaveMap(path string, rec MapRecord) error {
	return writeRecord(path, rec)
}

// LoadMap reads a map record and validates it.
func LoadMap(path string) (MapRecord, error) {
	var rec MapRecord
	if err := readRecord(path, &rec); err != nil {
		return MapRecord{}, err
	}
	if err := rec.Validate(); err != nil {
		return MapRecord{}, fmt.Errorf("map record %s: %w", path, err)
	}
	return rec, nil
}

func writeRecord(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), outputDirMode); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), recordFileMode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readRecord(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &imaging.MissingResourceError{ID: path, Err: err}
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Output naming. Every output keeps the full name of the image it was
// derived from, so photo.jpg becomes photo.jpg.target.json, then
// photo.jpg.map.json and finally photo.jpg.collage.jpg. photo.png in the
// same batch gets photo.png.collage.jpg.

func targetName(imagePath string) string {
	return filepath.Base(imagePath) + TargetSuffix
}

func mapName(targetPath string) string {
	return strings.TrimSuffix(filepath.Base(targetPath), TargetSuffix) + MapSuffix
}

func collageName(mapPath string) string {
	return strings.TrimSuffix(filepath.Base(mapPath), MapSuffix) + CollageSuffix
}

func collageNameForImage(imagePath string) string {
	return filepath.Base(imagePath) + CollageSuffix
}

// siblingDir turns "<x>.targets" into "<x>.maps" next to it. A directory
// without the expected suffix keeps its full name.
func siblingDir(dir, fromSuffix, toSuffix string) string {
	clean := filepath.Clean(dir)
	base := strings.TrimSuffix(filepath.Base(clean), fromSuffix)
	return filepath.Join(filepath.Dir(clean), base+toSuffix)
}
