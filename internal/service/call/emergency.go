package call

import "strings"

// emergencyNumbers maps ISO 3166-1 alpha-2 country codes to the local
// emergency medical line.
var emergencyNumbers = map[string]string{
	"PK": "1122",
	"US": "911",
	"CA": "911",
	"GB": "999",
	"UK": "999",
	"IN": "112",
	"AE": "998",
	"SA": "997",
}

var euMembers = []string{
	"AT", "BE", "BG", "HR", "CY", "CZ", "DK", "EE", "FI", "FR", "DE", "GR", "HU", "IE",
	"IT", "LV", "LT", "LU", "MT", "NL", "PL", "PT", "RO", "SK", "SI", "ES", "SE",
}

func init() {
	for _, c := range euMembers {
		emergencyNumbers[c] = "112"
	}
}

// EmergencyNumber returns the number to dial for a caller in country.
// ok is false when the country is unknown and fallback was returned.
func EmergencyNumber(country, fallback string) (number string, ok bool) {
	if n, found := emergencyNumbers[strings.ToUpper(strings.TrimSpace(country))]; found {
		return n, true
	}
	return fallback, false
}
