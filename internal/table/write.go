package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rewired-gh/reappoint/internal/logger"
	"github.com/rewired-gh/reappoint/internal/models"
)

// Stage output file names
const (
	ClassifiedFile = "classified.csv"
	AnnualFile     = "annual_proportions.csv"
	OrgYearFile    = "org_year_stats.csv"
	TopFile        = "top_organizations.csv"
)

// WriteFile creates path (and its directory) and hands it to write.
func WriteFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// WriteRecords writes classified records. The reappointed column holds the
// derived flag; source_reappointed keeps the value read from the input.
// Undated rows keep their raw year text.
func WriteRecords(w io.Writer, records []models.AppointmentRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "position", "org", "year", "reappointed", "source_reappointed"}); err != nil {
		return err
	}
	for _, r := range records {
		year := r.RawYear
		if r.YearValid {
			year = strconv.Itoa(r.Year)
		}
		row := []string{r.Name, r.Position, r.Organization, year, strconv.FormatBool(r.IsReappointment), r.SourceFlag.String()}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAnnual writes one row per year.
func WriteAnnual(w io.Writer, years []models.AnnualProportion) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"year", "total_appointments", "total_reappointments", "proportion"}); err != nil {
		return err
	}
	for _, y := range years {
		row := []string{
			strconv.Itoa(y.Year),
			strconv.Itoa(y.TotalAppointments),
			strconv.Itoa(y.TotalReappointments),
			formatFloat(y.Proportion),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOrgYear writes one row per organization and year.
func WriteOrgYear(w io.Writer, stats []models.OrgYearStat) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"org", "year", "appointments", "reappointments", "rate"}); err != nil {
		return err
	}
	for _, s := range stats {
		row := []string{
			s.Organization,
			strconv.Itoa(s.Year),
			strconv.Itoa(s.Appointments),
			strconv.Itoa(s.Reappointments),
			formatFloat(s.Rate),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTop writes the leading organization of each year.
func WriteTop(w io.Writer, top []models.TopOrganization) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"year", "org", "appointments", "reappointments", "rate"}); err != nil {
		return err
	}
	for _, t := range top {
		row := []string{
			strconv.Itoa(t.Year),
			t.Organization,
			strconv.Itoa(t.Appointments),
			strconv.Itoa(t.Reappointments),
			formatFloat(t.Rate),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadAnnual reads a file written by WriteAnnual. Proportions are
// recomputed from the counts rather than trusted from the file. Counts are
// base 10, so zero-padded spreadsheet cells read as decimal. Years with no
// appointments have no proportion and are skipped.
func ReadAnnual(r io.Reader, source string) ([]models.AnnualProportion, error) {
	cr := newReader(r, ',')

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: empty file", source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", source, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[headerKey(h)] = i
	}
	required := []string{"year", "total_appointments", "total_reappointments"}
	var missing []string
	for _, c := range required {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnError{Source: source, Missing: missing}
	}

	var years []models.AnnualProportion
	skipped := 0
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

		var values [3]int
		for i, c := range required {
			col := index[c]
			if col >= len(row) {
				return nil, fmt.Errorf("%s line %d: missing %s", source, line, c)
			}
			v, err := strconv.Atoi(strings.TrimSpace(row[col]))
			if err != nil {
				return nil, fmt.Errorf("%s line %d: invalid %s %q: %w", source, line, c, row[col], err)
			}
			values[i] = v
		}

		y := models.NewAnnualProportion(values[0], values[1], values[2])
		if err := y.Validate(); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", source, line, err)
		}
		if y.TotalAppointments == 0 {
			skipped++
			continue
		}
		years = append(years, y)
	}

	if skipped > 0 {
		logger.Warn("%s: skipped %d year(s) with no appointments", source, skipped)
	}
	return years, nil
}

// ReadAnnualFile opens path and reads it with ReadAnnual.
func ReadAnnualFile(path string) ([]models.AnnualProportion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadAnnual(f, filepath.Base(path))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
