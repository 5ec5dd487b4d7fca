// Package aggregate counts classified appointments by year and by
// organization and year, and derives reappointment rates from the counts.
//
// Every count is a raw row count: an organization that appoints the same
// person twice in a year counts two appointments.
package aggregate

import (
	"sort"

	"github.com/rewired-gh/reappoint/internal/classifier"
	"github.com/rewired-gh/reappoint/internal/models"
	"github.com/rewired-gh/reappoint/internal/trend"
)

// Counts is a pair of appointment/reappointment totals.
type Counts struct {
	Appointments   int `json:"appointments" yaml:"appointments"`
	Reappointments int `json:"reappointments" yaml:"reappointments"`
}

func (c *Counts) add(r *models.AppointmentRecord) {
	c.Appointments++
	if r.IsReappointment {
		c.Reappointments++
	}
}

// Summary is the government-wide annual aggregation.
// Undated holds the rows whose year is invalid, so that
// sum(Years[i].TotalAppointments) + Undated.Appointments == number of records.
type Summary struct {
	Years   []models.AnnualProportion `json:"years" yaml:"years"`
	Undated Counts                    `json:"undated" yaml:"undated"`
}

// TotalAppointments returns the number of records the summary was built from.
func (s Summary) TotalAppointments() int {
	total := s.Undated.Appointments
	for _, y := range s.Years {
		total += y.TotalAppointments
	}
	return total
}

// Annual counts appointments and reappointments per distinct valid year.
// Years are returned in ascending order.
func Annual(records []models.AppointmentRecord) Summary {
	byYear := make(map[int]*Counts)
	var summary Summary

	for i := range records {
		r := &records[i]
		if !r.YearValid {
			summary.Undated.add(r)
			continue
		}
		c, ok := byYear[r.Year]
		if !ok {
			c = &Counts{}
			byYear[r.Year] = c
		}
		c.add(r)
	}

	summary.Years = make([]models.AnnualProportion, 0, len(byYear))
	for year, c := range byYear {
		summary.Years = append(summary.Years, models.NewAnnualProportion(year, c.Appointments, c.Reappointments))
	}
	sort.Slice(summary.Years, func(i, j int) bool {
		return summary.Years[i].Year < summary.Years[j].Year
	})
	return summary
}

type orgYear struct {
	org  string
	year int
}

// ByOrganization counts appointments and reappointments per organization and
// year. Organizations are matched on their normalized name; the first
// spelling seen is reported. Undated rows are skipped. Results are sorted by
// organization then year.
func ByOrganization(records []models.AppointmentRecord) []models.OrgYearStat {
	counts := make(map[orgYear]*Counts)
	display := make(map[string]string)

	for i := range records {
		r := &records[i]
		if !r.YearValid {
			continue
		}
		norm := classifier.Normalize(r.Organization)
		if _, ok := display[norm]; !ok {
			display[norm] = r.Organization
		}
		k := orgYear{org: norm, year: r.Year}
		c, ok := counts[k]
		if !ok {
			c = &Counts{}
			counts[k] = c
		}
		c.add(r)
	}

	stats := make([]models.OrgYearStat, 0, len(counts))
	for k, c := range counts {
		stats = append(stats, models.OrgYearStat{
			Organization:   display[k.org],
			Year:           k.year,
			Appointments:   c.Appointments,
			Reappointments: c.Reappointments,
			Rate:           models.Rate(c.Reappointments, c.Appointments),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Organization != stats[j].Organization {
			return stats[i].Organization < stats[j].Organization
		}
		return stats[i].Year < stats[j].Year
	})
	return stats
}

// TopByYear picks, for each year, the organization with the highest
// reappointment rate among those with at least minAppointments appointments.
// Ties go to the organization with more appointments, then to the
// lexicographically smaller name. Years with no qualifying organization are
// omitted.
func TopByYear(stats []models.OrgYearStat, minAppointments int) []models.TopOrganization {
	best := make(map[int]models.OrgYearStat)

	for _, s := range stats {
		if s.Appointments < minAppointments || s.Appointments == 0 {
			continue
		}
		cur, ok := best[s.Year]
		if !ok || better(s, cur) {
			best[s.Year] = s
		}
	}

	top := make([]models.TopOrganization, 0, len(best))
	for year, s := range best {
		top = append(top, models.TopOrganization{
			Year:           year,
			Organization:   s.Organization,
			Appointments:   s.Appointments,
			Reappointments: s.Reappointments,
			Rate:           s.Rate,
		})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Year < top[j].Year })
	return top
}

func better(a, b models.OrgYearStat) bool {
	if a.Rate != b.Rate {
		return a.Rate > b.Rate
	}
	if a.Appointments != b.Appointments {
		return a.Appointments > b.Appointments
	}
	return a.Organization < b.Organization
}

// Points converts annual proportions into regression points. Years without
// appointments have no defined proportion and are skipped.
func Points(years []models.AnnualProportion) []trend.Point {
	points := make([]trend.Point, 0, len(years))
	for _, y := range years {
		if y.TotalAppointments == 0 {
			continue
		}
		points = append(points, trend.Point{Year: y.Year, Value: y.Proportion})
	}
	return points
}
