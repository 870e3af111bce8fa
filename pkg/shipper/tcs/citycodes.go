package tcs

import (
	"sort"
	"strings"
)

// cityCodes maps destination city names to TCS station codes.
var cityCodes = map[string]string{
	"karachi":    "KHI",
	"lahore":     "LHE",
	"islamabad":  "ISB",
	"multan":     "MUX",
	"faisalabad": "FSD",
	"peshawar":   "PEW",
	"rawalpindi": "RWP",
	"hyderabad":  "HYD",
	"quetta":     "UET",
	"nowshera":   "NWS",
}

// cityNames is sorted longest first so "rawalpindi" wins over shorter names
// that might be contained in it.
var cityNames = func() []string {
	names := make([]string, 0, len(cityCodes))
	for name := range cityCodes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}()

// CityCode returns the TCS station code for a city. An exact case-insensitive
// match wins; otherwise a known city name contained in the input is used,
// so "Lahore Cantt" maps to LHE.
func CityCode(city string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(city))
	if key == "" {
		return "", false
	}
	if code, ok := cityCodes[key]; ok {
		return code, true
	}
	for _, name := range cityNames {
		if strings.Contains(key, name) {
			return cityCodes[name], true
		}
	}
	return "", false
}
