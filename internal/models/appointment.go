// Package models defines the core domain entities for the reappoint pipeline.
// These models represent appointment records, annual and per-organization
// aggregates, and the fitted reappointment trend.
// All models include built-in validation to ensure data integrity throughout the application.
//
// Terminology:
//   - Appointment: one row of source data naming a person, a position and an organization.
//   - Reappointment: an appointment whose normalized identity was already seen in an
//     earlier year.
package models

import (
	"errors"
	"fmt"
)

// Flag is a tri-state boolean parsed from heterogeneous source text.
type Flag int

const (
	// FlagUnknown means the source value was missing or not recognizable.
	FlagUnknown Flag = iota
	// FlagFalse is an explicit negative ("false", "no", "0", ...).
	FlagFalse
	// FlagTrue is an explicit positive ("true", "yes", "1", ...).
	FlagTrue
)

// String returns the flag as it is written to CSV output.
func (f Flag) String() string {
	switch f {
	case FlagTrue:
		return "true"
	case FlagFalse:
		return "false"
	default:
		return "unknown"
	}
}

// AppointmentRecord represents a single government appointment.
//
// IsReappointment is never trusted from the source; it is derived by the
// classifier. The source's own flag, when present, is kept in SourceFlag so
// that the two can be compared.
type AppointmentRecord struct {
	Row             int    `json:"row"`          // Zero-based input order, used as tie-breaker
	Name            string `json:"name"`         // Person, free text
	Position        string `json:"position"`     // Role title, free text
	Organization    string `json:"organization"` // Government branch, free text
	Year            int    `json:"year"`
	YearValid       bool   `json:"year_valid"`         // False when RawYear was missing, unparseable or out of range
	RawYear         string `json:"raw_year,omitempty"` // Year exactly as read from the source
	SourceFlag      Flag   `json:"source_flag"`
	IsReappointment bool   `json:"is_reappointment"`
}

// Validate checks that all record fields are consistent.
func (r *AppointmentRecord) Validate() error {
	if r.Row < 0 {
		return errors.New("row must not be negative")
	}
	if r.YearValid && r.Year <= 0 {
		return fmt.Errorf("year %d marked valid but is not positive", r.Year)
	}
	if r.SourceFlag < FlagUnknown || r.SourceFlag > FlagTrue {
		return fmt.Errorf("source flag %d out of range", r.SourceFlag)
	}
	return nil
}
