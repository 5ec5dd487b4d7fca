// Package classifier marks appointment records that are reappointments.
//
// Records are grouped by a normalized identity key (name, position,
// organization). Within a group the records are ordered chronologically and
// every record after the first is a reappointment:
//
//	group = [r_0, r_1, ..., r_k]  sorted by (year valid, year, input order)
//	r_0.IsReappointment = false
//	r_i.IsReappointment = true   for i >= 1
//
// Records whose year is invalid sort after every dated record of their group,
// in input order. A record whose identity fields are all unusable forms a
// group of its own.
package classifier

import (
	"sort"

	"github.com/rewired-gh/reappoint/internal/logger"
	"github.com/rewired-gh/reappoint/internal/models"
)

// Default sentinels substituted for missing identity fields.
const (
	DefaultUnknownName         = "UNKNOWN_NAME"
	DefaultUnknownPosition     = "UNKNOWN_POSITION"
	DefaultUnknownOrganization = "UNKNOWN_ORGANIZATION"
)

// Options configures sentinel substitution.
type Options struct {
	UnknownName         string
	UnknownPosition     string
	UnknownOrganization string
}

// DefaultOptions returns the standard sentinels.
func DefaultOptions() Options {
	return Options{
		UnknownName:         DefaultUnknownName,
		UnknownPosition:     DefaultUnknownPosition,
		UnknownOrganization: DefaultUnknownOrganization,
	}
}

func (o Options) withDefaults() Options {
	if o.UnknownName == "" {
		o.UnknownName = DefaultUnknownName
	}
	if o.UnknownPosition == "" {
		o.UnknownPosition = DefaultUnknownPosition
	}
	if o.UnknownOrganization == "" {
		o.UnknownOrganization = DefaultUnknownOrganization
	}
	return o
}

// Key is the normalized identity of an appointment.
type Key struct {
	Name         string
	Position     string
	Organization string
}

// SourceAgreement compares derived flags against the flags found in the source.
type SourceAgreement struct {
	Agree    int `json:"agree" yaml:"agree"`
	Disagree int `json:"disagree" yaml:"disagree"`
	Unknown  int `json:"unknown" yaml:"unknown"`
}

// Stats summarizes one classification pass.
type Stats struct {
	Records               int             `json:"records" yaml:"records"`
	Groups                int             `json:"groups" yaml:"groups"`
	Singletons            int             `json:"singletons" yaml:"singletons"`
	Reappointments        int             `json:"reappointments" yaml:"reappointments"`
	InvalidYears          int             `json:"invalid_years" yaml:"invalid_years"`
	SentinelSubstitutions int             `json:"sentinel_substitutions" yaml:"sentinel_substitutions"`
	Unidentifiable        int             `json:"unidentifiable" yaml:"unidentifiable"`
	Source                SourceAgreement `json:"source" yaml:"source"`
}

// identity resolves the identity fields of a record, substituting sentinels
// for unusable values. A field that already holds its sentinel counts as
// missing so that classifying a classified table gives the same groups.
// usable is false when all three fields were unusable.
func (o Options) identity(r *models.AppointmentRecord) (key Key, substituted int, usable bool) {
	fields := []struct {
		value    *string
		sentinel string
		key      *string
	}{
		{&r.Name, o.UnknownName, &key.Name},
		{&r.Position, o.UnknownPosition, &key.Position},
		{&r.Organization, o.UnknownOrganization, &key.Organization},
	}

	for _, f := range fields {
		sentinelKey := Normalize(f.sentinel)
		normalized := Normalize(*f.value)
		if normalized == "" || normalized == sentinelKey {
			*f.value = f.sentinel
			*f.key = sentinelKey
			substituted++
			continue
		}
		*f.key = normalized
		usable = true
	}
	return key, substituted, usable
}

// Classify returns a copy of records with IsReappointment derived from the
// grouping rule. The input slice is not modified.
func Classify(records []models.AppointmentRecord, opts Options) ([]models.AppointmentRecord, Stats) {
	opts = opts.withDefaults()

	out := make([]models.AppointmentRecord, len(records))
	copy(out, records)

	stats := Stats{Records: len(out)}
	groups := make(map[Key][]int)
	var order []Key
	var singletons []int

	for i := range out {
		rec := &out[i]
		rec.IsReappointment = false
		if !rec.YearValid {
			stats.InvalidYears++
		}

		key, substituted, usable := opts.identity(rec)
		if substituted > 0 {
			stats.SentinelSubstitutions++
		}
		if !usable {
			stats.Unidentifiable++
			singletons = append(singletons, i)
			continue
		}

		if _, exists := groups[key]; !exists {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	for _, key := range order {
		idx := groups[key]
		if len(idx) == 1 {
			stats.Singletons++
			continue
		}

		// idx is in input order; the stable sort keeps it for ties.
		sort.SliceStable(idx, func(a, b int) bool {
			ra, rb := &out[idx[a]], &out[idx[b]]
			if ra.YearValid != rb.YearValid {
				return ra.YearValid
			}
			if !ra.YearValid {
				return false
			}
			return ra.Year < rb.Year
		})

		for _, i := range idx[1:] {
			out[i].IsReappointment = true
			stats.Reappointments++
		}
	}

	stats.Groups = len(order) + len(singletons)
	stats.Singletons += len(singletons)

	for i := range out {
		switch {
		case out[i].SourceFlag == models.FlagUnknown:
			stats.Source.Unknown++
		case (out[i].SourceFlag == models.FlagTrue) == out[i].IsReappointment:
			stats.Source.Agree++
		default:
			stats.Source.Disagree++
		}
	}

	logger.Debug("Classify: records=%d groups=%d singletons=%d reappointments=%d invalid_years=%d substitutions=%d",
		stats.Records, stats.Groups, stats.Singletons, stats.Reappointments, stats.InvalidYears, stats.SentinelSubstitutions)

	return out, stats
}

// KeyOf returns the normalized identity key of a record as Classify would
// compute it. The second result is false when the record has no usable
// identity field.
func KeyOf(r models.AppointmentRecord, opts Options) (Key, bool) {
	key, _, usable := opts.withDefaults().identity(&r)
	return key, usable
}
