package classifier

import (
	"strings"

	"github.com/rewired-gh/reappoint/internal/models"
	"github.com/spf13/cast"
)

// ParseFlag parses a textual reappointment flag into a tri-state value.
//
// Accepted spellings are yes/no, y/n, 1/0 and everything strconv.ParseBool
// understands (true/false, t/f, in any case). Anything else, including the
// empty string, is FlagUnknown; it is never coerced to false.
func ParseFlag(v string) models.Flag {
	s := strings.ToLower(strings.TrimSpace(v))
	switch s {
	case "":
		return models.FlagUnknown
	case "yes", "y", "1":
		return models.FlagTrue
	case "no", "n", "0":
		return models.FlagFalse
	}

	b, err := cast.ToBoolE(s)
	if err != nil {
		return models.FlagUnknown
	}
	if b {
		return models.FlagTrue
	}
	return models.FlagFalse
}
