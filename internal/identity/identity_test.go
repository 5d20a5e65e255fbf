package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idserver/pkg/domain-errors"
)

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" Veriff ")
	require.NoError(t, err)
	assert.Equal(t, ProviderVeriff, p)

	_, err = ParseProvider("persona")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = ParseProvider("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestCountryPrime(t *testing.T) {
	p, ok := CountryPrime("US")
	require.True(t, ok)
	assert.Equal(t, uint64(2), p)

	p, ok = CountryPrime("gb")
	require.True(t, ok)
	assert.Equal(t, uint64(1093), p)

	_, ok = CountryPrime("XX")
	assert.False(t, ok)
	assert.False(t, IsSupportedCountry(""))
}

func TestCountryPrimesAreDistinctPrimes(t *testing.T) {
	seen := map[uint64]string{}
	for code, p := range countryPrimes {
		if prev, dup := seen[p]; dup {
			t.Fatalf("prime %d shared by %s and %s", p, prev, code)
		}
		seen[p] = code
		for d := uint64(2); d*d <= p; d++ {
			if p%d == 0 {
				t.Fatalf("%s maps to non-prime %d", code, p)
			}
		}
	}
}

func TestParseStreetUnit(t *testing.T) {
	cases := map[string]uint64{
		"":         0,
		"apt 5":    5,
		"Apt. 12":  12,
		"7":        7,
		"suite 4b": 0,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseStreetUnit(in), "input %q", in)
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"1950-01-01", "1950-01-01"},
		{"2022-09-16T02:21:59.510Z", "2022-09-16"},
		{"2022-09-16T01:00:00+02:00", "2022-09-16"},
		{"2022-09-16T23:30:00-05:00", "2022-09-16"},
		{"2022-09-16 02:21:59", "2022-09-16"},
	}
	for _, tt := range tests {
		got, err := NormalizeDate(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"not a date", "05/01/1990", "1990-13-01"} {
		_, err := NormalizeDate(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestNormalizeCountry(t *testing.T) {
	cases := map[string]string{
		"US":                       "US",
		"gb":                       "GB",
		"GBR":                      "GB",
		"deu":                      "DE",
		"United States of America": "US",
		"  Germany ":               "DE",
		"Côte d'Ivoire":            "CI",
		"XX":                       "",
		"Atlantis":                 "",
		"":                         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeCountry(in), in)
	}
}

func TestEveryAlpha3ResolvesToAPrime(t *testing.T) {
	for a3, a2 := range alpha3 {
		assert.True(t, IsSupportedCountry(a2), a3)
	}
	assert.Len(t, alpha3, len(countryPrimes))
}
