// Package fips normalizes Federal Information Processing Standard codes.
package fips

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// CountyDigits is the width of a combined state+county code.
const CountyDigits = 5

// NormalizeState normalizes a state FIPS code to 2 digits with zero-padding.
func NormalizeState(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if len(code) == 1 {
		return "0" + code
	}
	return code
}

// NormalizeCounty normalizes a county FIPS code to 3 digits with zero-padding.
func NormalizeCounty(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	for len(code) < 3 {
		code = "0" + code
	}
	return code
}

// Combine combines state and county FIPS codes into a 5-digit code.
func Combine(state, county string) string {
	s := NormalizeState(state)
	c := NormalizeCounty(county)
	if s == "" || c == "" {
		return ""
	}
	return s + c
}

// Format formats a numeric FIPS code with proper zero-padding.
func Format(code int, digits int) string {
	return fmt.Sprintf("%0*d", digits, code)
}

// ParseCounty parses a county identifier as it appears in the source
// tables ("1001", "01001", "1001.0", " 1001 ") into its numeric value and
// its 5-digit string form.
func ParseCounty(raw string) (int, string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, "", eris.New("fips: empty county code")
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, "", eris.Errorf("fips: invalid county code %q", raw)
		}
		n = int(f)
	}

	if n <= 0 || n > 99999 {
		return 0, "", eris.Errorf("fips: county code %q out of range", raw)
	}
	return n, Format(n, CountyDigits), nil
}

// StatePrefix returns the 2-digit state portion of a 5-digit county code.
func StatePrefix(county string) string {
	if len(county) < 2 {
		return ""
	}
	return county[:2]
}
