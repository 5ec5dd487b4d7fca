package models

import (
	"errors"
	"time"
)

// RunSummary describes one execution of the pipeline
type RunSummary struct {
	ID             string    `json:"id" yaml:"id"`
	StartedAt      time.Time `json:"started_at" yaml:"started_at"`
	Input          string    `json:"input" yaml:"input"`
	Records        int       `json:"records" yaml:"records"`
	Reappointments int       `json:"reappointments" yaml:"reappointments"`
	InvalidYears   int       `json:"invalid_years" yaml:"invalid_years"`
	Organizations  int       `json:"organizations" yaml:"organizations"`
	TrendError     string    `json:"trend_error,omitempty" yaml:"trend_error,omitempty"`
}

// Validate checks that all run fields are valid
func (r *RunSummary) Validate() error {
	if r.ID == "" {
		return errors.New("run ID must not be empty")
	}
	if r.Input == "" {
		return errors.New("run input must not be empty")
	}
	if r.Records < 0 || r.Reappointments < 0 || r.InvalidYears < 0 {
		return errors.New("run counts must not be negative")
	}
	if r.Reappointments > r.Records {
		return errors.New("reappointments must not exceed records")
	}
	if r.StartedAt.After(time.Now()) {
		return errors.New("started at must not be in the future")
	}
	return nil
}
