package classifier

import (
	"testing"

	"github.com/rewired-gh/reappoint/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jane Doe", "jane doe"},
		{"  JANE   DOE  ", "jane doe"},
		{"J.R. Smith", "jr smith"},
		{"O'Neil, Pat", "oneil pat"},
		{"Zoë Lée", "zoe lee"},
		{"Health & Wellness", "health & wellness"},
		{"Vice-Chair", "vice-chair"},
		{"Justice/Attorney General", "justice/attorney general"},
		{"Board (Acting)", "board acting"},
		{"Tab\tand\nnewline", "tab and newline"},
		{"“Quoted” Name", "quoted name"},
		{"...", ""},
		{"", ""},
		{"ＦＵＬＬ　ＷＩＤＴＨ", "full width"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Jane Doe", "J.R. Smith", "O'Neil, Pat", "Zoë Lée", "İstanbul Office",
		"ℌealth ℭouncil", "Ǆemal", "ﬁnance", "UNKNOWN_NAME", "a -- b", "  ", "Straße",
		"Health & Wellness", "Board (Acting)", "ＦＵＬＬ　ＷＩＤＴＨ", "Ⅷ Division",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "Normalize not idempotent for %q", in)
	}
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		in   string
		want models.Flag
	}{
		{"True", models.FlagTrue},
		{"true", models.FlagTrue},
		{"TRUE", models.FlagTrue},
		{"yes", models.FlagTrue},
		{"Y", models.FlagTrue},
		{"1", models.FlagTrue},
		{"t", models.FlagTrue},
		{" false ", models.FlagFalse},
		{"No", models.FlagFalse},
		{"n", models.FlagFalse},
		{"0", models.FlagFalse},
		{"F", models.FlagFalse},
		{"", models.FlagUnknown},
		{"   ", models.FlagUnknown},
		{"maybe", models.FlagUnknown},
		{"reappointed", models.FlagUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseFlag(tt.in), "ParseFlag(%q)", tt.in)
	}
}
