// Package table reads appointment records from CSV files and writes the
// pipeline's stage outputs back as CSV.
//
// Headers are matched case- and whitespace-insensitively against a list of
// aliases per logical column, so that the yearly exports with their
// slightly different headers can be loaded together.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rewired-gh/reappoint/internal/classifier"
	"github.com/rewired-gh/reappoint/internal/logger"
	"github.com/rewired-gh/reappoint/internal/models"
	"github.com/spf13/cast"
)

// DefaultPattern matches the per-year export files inside an input directory.
const DefaultPattern = "appointments_*.csv"

var (
	// ErrMissingColumn is matched by every *MissingColumnError.
	ErrMissingColumn = errors.New("missing required column")
	// ErrNoInput is returned when a directory holds no file matching the pattern.
	ErrNoInput = errors.New("no input files")
)

// MissingColumnError lists the logical columns a file lacks.
type MissingColumnError struct {
	Source  string
	Missing []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing required column(s): %s", e.Source, strings.Join(e.Missing, ", "))
}

// Is makes errors.Is(err, ErrMissingColumn) hold.
func (e *MissingColumnError) Is(target error) bool {
	return target == ErrMissingColumn
}

// Logical column names
const (
	ColName         = "name"
	ColPosition     = "position"
	ColOrganization = "organization"
	ColYear         = "year"
	ColReappointed  = "reappointed"
)

var aliases = map[string][]string{
	ColName:         {"name"},
	ColPosition:     {"position", "appointment", "title"},
	ColOrganization: {"organization", "org", "org_name"},
	ColYear:         {"year"},
	ColReappointed:  {"reappointed", "is_reappointment"},
}

var digitsRe = regexp.MustCompile(`\d+`)

// Options controls how records are read.
type Options struct {
	// Pattern selects files when Load is given a directory.
	Pattern string
	// Delimiter is the field separator; 0 means ','.
	Delimiter rune
	// MinYear and MaxYear bound the valid years; 0 leaves a side open.
	MinYear int
	MaxYear int
	// TrustFlag takes IsReappointment from the reappointed column. It is
	// used when reading back classifier output.
	TrustFlag bool
}

// DefaultOptions returns options for the yearly exports.
func DefaultOptions() Options {
	return Options{Pattern: DefaultPattern, Delimiter: ','}
}

// Load reads appointment records from a CSV file or from every file in a
// directory matching opts.Pattern, in file name order. Row numbers run
// across files so they stay a global input order.
func Load(path string, opts Options) ([]models.AppointmentRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		pattern := opts.Pattern
		if pattern == "" {
			pattern = DefaultPattern
		}
		files, err = filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid input pattern %q: %w", pattern, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("%w: %s matches nothing in %s", ErrNoInput, pattern, path)
		}
		sort.Strings(files)
	}

	var records []models.AppointmentRecord
	for _, file := range files {
		records, err = loadFile(file, records, opts)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("Loaded %d records from %d file(s)", len(records), len(files))
	return records, nil
}

func loadFile(path string, records []models.AppointmentRecord, opts Options) ([]models.AppointmentRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return readRecords(f, filepath.Base(path), FileYear(path), records, opts)
}

// Read parses appointment records from r. source names the input in errors
// and logs.
func Read(r io.Reader, source string, opts Options) ([]models.AppointmentRecord, error) {
	return readRecords(r, source, 0, nil, opts)
}

// FileYear extracts the last run of exactly four digits from a file name,
// or 0.
func FileYear(path string) int {
	runs := digitsRe.FindAllString(filepath.Base(path), -1)
	for i := len(runs) - 1; i >= 0; i-- {
		if len(runs[i]) == 4 {
			year, _ := strconv.Atoi(runs[i])
			return year
		}
	}
	return 0
}

func readRecords(r io.Reader, source string, fileYear int, records []models.AppointmentRecord, opts Options) ([]models.AppointmentRecord, error) {
	cr := newReader(r, opts.Delimiter)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: empty file", source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", source, err)
	}

	cols := resolve(header)
	var missing []string
	for _, c := range []string{ColName, ColPosition, ColOrganization} {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if _, ok := cols[ColYear]; !ok && fileYear == 0 {
		missing = append(missing, ColYear)
	}
	if len(missing) > 0 {
		return nil, &MissingColumnError{Source: source, Missing: missing}
	}

	invalid := 0
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read %s line %d: %w", source, line, err)
		}

		rec := models.AppointmentRecord{
			Row:          len(records),
			Name:         cell(row, cols, ColName),
			Position:     cell(row, cols, ColPosition),
			Organization: cell(row, cols, ColOrganization),
			SourceFlag:   classifier.ParseFlag(cell(row, cols, ColReappointed)),
		}

		rec.RawYear = cell(row, cols, ColYear)
		if _, ok := cols[ColYear]; !ok || rec.RawYear == "" {
			if fileYear > 0 {
				rec.RawYear = cast.ToString(fileYear)
			}
		}
		rec.Year, rec.YearValid = ParseYear(rec.RawYear, opts.MinYear, opts.MaxYear)
		if !rec.YearValid {
			invalid++
		}
		if !rec.YearValid && logger.Enabled("debug") {
			logger.Debug("%s line %d: invalid year %q", source, line, rec.RawYear)
		}

		if opts.TrustFlag {
			rec.IsReappointment = rec.SourceFlag == models.FlagTrue
		}
		records = append(records, rec)
	}

	if invalid > 0 {
		logger.Warn("%s: %d row(s) with missing or invalid year", source, invalid)
	}
	return records, nil
}

// ParseYear parses a year cell. Integral floats such as "2014.0" are
// accepted. The year is invalid when it is empty, not a whole number, not
// positive, or outside [minYear, maxYear] (a zero bound is open).
func ParseYear(raw string, minYear, maxYear int) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	f, err := cast.ToFloat64E(s)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	year := int(f)
	if year <= 0 {
		return 0, false
	}
	if (minYear > 0 && year < minYear) || (maxYear > 0 && year > maxYear) {
		return year, false
	}
	return year, true
}

func newReader(r io.Reader, delim rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if delim != 0 {
		cr.Comma = delim
	}
	return cr
}

// resolve maps each logical column to the index of its first matching header.
func resolve(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := headerKey(h)
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}

	cols := make(map[string]int)
	for logical, names := range aliases {
		for _, name := range names {
			if i, ok := index[name]; ok {
				cols[logical] = i
				break
			}
		}
	}
	return cols
}

func headerKey(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.Join(strings.Fields(strings.ToLower(h)), "_")
}

func cell(row []string, cols map[string]int, logical string) string {
	i, ok := cols[logical]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
