package pool

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ironsheep/photomosaic/internal/imaging"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	poolFileMode    = 0o644
	poolDirMode     = 0o755
	tempFilePattern = ".pool-*.tmp"
)

// Format identifies an on-disk pool encoding.
type Format string

// Supported formats. All of them store components with the shortest decimal
// representation that parses back to the same float64, so Save followed by
// Load reproduces every colour exactly.
const (
	// FormatJSON is an object mapping id to [r, g, b], read in file order.
	FormatJSON Format = "json"
	// FormatTOML is a versioned list of [[sources]] tables.
	FormatTOML Format = "toml"
	// FormatText is one "id<TAB>r g b" line per source; '#' starts a comment.
	FormatText Format = "text"
)

// FormatFor picks a format from the extension of path.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	case ".txt", ".tsv":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported pool file extension %q", filepath.Ext(path))
	}
}

// PersistenceError reports a pool file that cannot be read or written. A
// run that hits one is aborted: every result derived from a bad pool would
// be meaningless.
type PersistenceError struct {
	Path string
	Line int // 1-based, 0 when unknown
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("pool file %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("pool file %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Load reads the pool stored at path.
func Load(path string) (*Pool, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, &PersistenceError{Path: path, Err: err}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &PersistenceError{Path: path, Err: err}
	}
	defer f.Close()

	p, err := Decode(f, format)
	if err != nil {
		var pe *PersistenceError
		if errors.As(err, &pe) {
			pe.Path = path
			return nil, pe
		}
		return nil, &PersistenceError{Path: path, Err: err}
	}
	return p, nil
}

// Save writes p to path atomically through a temporary file in the same
// directory.
func Save(path string, p *Pool) error {
	format, err := FormatFor(path)
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, p, format); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

// Decode parses a pool in the given format. Structural problems are
// reported as *PersistenceError.
func Decode(r io.Reader, format Format) (*Pool, error) {
	var (
		entries []SourceEntry
		err     error
	)
	switch format {
	case FormatJSON:
		entries, err = decodeJSON(r)
	case FormatTOML:
		entries, err = decodeTOML(r)
	case FormatText:
		entries, err = decodeText(r)
	default:
		err = fmt.Errorf("unknown pool format %q", format)
	}
	if err != nil {
		var pe *PersistenceError
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, &PersistenceError{Err: err}
	}

	p, err := New(entries)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return p, nil
}

// Encode writes p in the given format.
func Encode(w io.Writer, p *Pool, format Format) error {
	switch format {
	case FormatJSON:
		return encodeJSON(w, p)
	case FormatTOML:
		return encodeTOML(w, p)
	case FormatText:
		return encodeText(w, p)
	default:
		return fmt.Errorf("unknown pool format %q", format)
	}
}

// decodeJSON walks the object token by token so that entry order follows
// the file rather than Go's map iteration.
func decodeJSON(r io.Reader) ([]SourceEntry, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode pool json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode pool json: expected an object, got %v", tok)
	}

	var entries []SourceEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode pool json: %w", err)
		}
		id, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("decode pool json: expected a key, got %v", tok)
		}
		var rgb []float64
		if err := dec.Decode(&rgb); err != nil {
			return nil, fmt.Errorf("decode color of %q: %w", id, err)
		}
		c, err := toColor(rgb)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", id, err)
		}
		entries = append(entries, SourceEntry{ID: id, Color: c})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode pool json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode pool json: trailing data after object")
	}
	return entries, nil
}

func encodeJSON(w io.Writer, p *Pool) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("{")
	for i, e := range p.entries {
		if i > 0 {
			bw.WriteString(",")
		}
		key, err := json.Marshal(e.ID)
		if err != nil {
			return fmt.Errorf("encode id %q: %w", e.ID, err)
		}
		val, err := json.Marshal(e.Color)
		if err != nil {
			return fmt.Errorf("encode color of %q: %w", e.ID, err)
		}
		bw.WriteString("\n  ")
		bw.Write(key)
		bw.WriteString(": ")
		bw.Write(val)
	}
	bw.WriteString("\n}\n")
	return bw.Flush()
}

const currentSchemaVersion = 1

type fileSchema struct {
	Version int            `toml:"version"`
	Sources []sourceSchema `toml:"sources"`
}

type sourceSchema struct {
	ID    string    `toml:"id"`
	Color []float64 `toml:"color"`
}

// rawFileSchema accepts integer components too: a whole-valued colour may
// be written without a decimal point by hand-edited files.
type rawFileSchema struct {
	Version int `toml:"version"`
	Sources []struct {
		ID    string `toml:"id"`
		Color []any  `toml:"color"`
	} `toml:"sources"`
}

func decodeTOML(r io.Reader) ([]SourceEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pool toml: %w", err)
	}
	var file rawFileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode pool toml: %w", err)
	}
	if file.Version > currentSchemaVersion {
		return nil, fmt.Errorf("unsupported pool schema version %d (current %d)", file.Version, currentSchemaVersion)
	}

	entries := make([]SourceEntry, 0, len(file.Sources))
	for _, s := range file.Sources {
		rgb := make([]float64, 0, len(s.Color))
		for _, v := range s.Color {
			switch n := v.(type) {
			case float64:
				rgb = append(rgb, n)
			case int64:
				rgb = append(rgb, float64(n))
			default:
				return nil, fmt.Errorf("source %q: color component %v is not a number", s.ID, v)
			}
		}
		c, err := toColor(rgb)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", s.ID, err)
		}
		entries = append(entries, SourceEntry{ID: s.ID, Color: c})
	}
	return entries, nil
}

func encodeTOML(w io.Writer, p *Pool) error {
	file := fileSchema{Version: currentSchemaVersion, Sources: make([]sourceSchema, 0, len(p.entries))}
	for _, e := range p.entries {
		file.Sources = append(file.Sources, sourceSchema{ID: e.ID, Color: e.Color[:]})
	}
	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode pool toml: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func decodeText(r io.Reader) ([]SourceEntry, error) {
	var entries []SourceEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(strings.TrimSpace(text), "#") {
			continue
		}
		id, rest, ok := strings.Cut(text, "\t")
		if !ok {
			return nil, &PersistenceError{Line: line, Err: errors.New("expected id<TAB>r g b")}
		}
		fields := strings.Fields(rest)
		rgb := make([]float64, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, &PersistenceError{Line: line, Err: fmt.Errorf("bad component %q: %w", f, err)}
			}
			rgb = append(rgb, v)
		}
		c, err := toColor(rgb)
		if err != nil {
			return nil, &PersistenceError{Line: line, Err: err}
		}
		entries = append(entries, SourceEntry{ID: id, Color: c})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read pool text: %w", err)
	}
	return entries, nil
}

func encodeText(w io.Writer, p *Pool) error {
	bw := bufio.NewWriter(w)
	for _, e := range p.entries {
		if strings.ContainsAny(e.ID, "\t\r\n") {
			return fmt.Errorf("id %q cannot be stored in the text format", e.ID)
		}
		// The decoder skips such lines as comments.
		if strings.HasPrefix(strings.TrimSpace(e.ID), "#") {
			return fmt.Errorf("id %q would read back as a comment in the text format", e.ID)
		}
		fmt.Fprintf(bw, "%s\t%s %s %s\n", e.ID,
			strconv.FormatFloat(e.Color[0], 'g', -1, 64),
			strconv.FormatFloat(e.Color[1], 'g', -1, 64),
			strconv.FormatFloat(e.Color[2], 'g', -1, 64))
	}
	return bw.Flush()
}

func toColor(rgb []float64) (imaging.ColorVector, error) {
	if len(rgb) != 3 {
		return imaging.ColorVector{}, fmt.Errorf("expected 3 color components, got %d", len(rgb))
	}
	c := imaging.ColorVector{rgb[0], rgb[1], rgb[2]}
	if !c.Valid() {
		return imaging.ColorVector{}, fmt.Errorf("color %v outside [0,255]", rgb)
	}
	return c, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, poolDirMode); err != nil {
		return fmt.Errorf("create pool directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp pool file: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp pool file: %w", err)
	}
	if err := tempFile.Chmod(poolFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp pool file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp pool file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace pool file: %w", err)
	}
	cleanup = false
	return nil
}
