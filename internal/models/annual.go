package models

import (
	"errors"
	"fmt"
	"math"
)

// AnnualProportion is the government-wide reappointment count for one year.
type AnnualProportion struct {
	Year                int     `json:"year" yaml:"year"`
	TotalAppointments   int     `json:"total_appointments" yaml:"total_appointments"`
	TotalReappointments int     `json:"total_reappointments" yaml:"total_reappointments"`
	Proportion          float64 `json:"proportion" yaml:"proportion"`
}

// NewAnnualProportion builds an AnnualProportion and derives its proportion.
// The proportion is NaN when there are no appointments.
func NewAnnualProportion(year, appointments, reappointments int) AnnualProportion {
	return AnnualProportion{
		Year:                year,
		TotalAppointments:   appointments,
		TotalReappointments: reappointments,
		Proportion:          Rate(reappointments, appointments),
	}
}

// Validate checks that counts are non-negative and reappointments never exceed appointments
func (a *AnnualProportion) Validate() error {
	if a.TotalAppointments < 0 {
		return errors.New("total appointments must not be negative")
	}
	if a.TotalReappointments < 0 {
		return errors.New("total reappointments must not be negative")
	}
	if a.TotalReappointments > a.TotalAppointments {
		return fmt.Errorf("total reappointments %d exceeds total appointments %d",
			a.TotalReappointments, a.TotalAppointments)
	}
	if a.TotalAppointments > 0 && math.Abs(a.Proportion-Rate(a.TotalReappointments, a.TotalAppointments)) > 1e-9 {
		return errors.New("proportion must equal total_reappointments / total_appointments")
	}
	return nil
}

// OrgYearStat holds the appointment and reappointment counts of one
// organization in one year. Appointments is the raw row count.
type OrgYearStat struct {
	Organization   string  `json:"organization" yaml:"organization"`
	Year           int     `json:"year" yaml:"year"`
	Appointments   int     `json:"appointments" yaml:"appointments"`
	Reappointments int     `json:"reappointments" yaml:"reappointments"`
	Rate           float64 `json:"rate" yaml:"rate"`
}

// TopOrganization names the organization with the highest reappointment rate in a year.
type TopOrganization struct {
	Year           int     `json:"year" yaml:"year"`
	Organization   string  `json:"organization" yaml:"organization"`
	Appointments   int     `json:"appointments" yaml:"appointments"`
	Reappointments int     `json:"reappointments" yaml:"reappointments"`
	Rate           float64 `json:"rate" yaml:"rate"`
}

// Rate returns part/total, or NaN when total is zero.
func Rate(part, total int) float64 {
	if total == 0 {
		return math.NaN()
	}
	return float64(part) / float64(total)
}
