package identity

import "strings"

// countryPrimes maps ISO 3166-1 alpha-2 codes to the prime that represents
// the country inside a credential leaf. Values are part of the credential
// format and must never change.
var countryPrimes = map[string]uint64{
	"US": 2, "AL": 3, "DZ": 5, "AD": 7, "AO": 11, "AG": 13, "AR": 17, "AM": 19,
	"AU": 23, "AT": 29, "AZ": 31, "BS": 37, "BH": 41, "BD": 43, "BB": 47, "BY": 53,
	"BE": 59, "BZ": 61, "BJ": 67, "BT": 71, "BO": 73, "BA": 79, "BW": 83, "BR": 89,
	"BN": 97, "BG": 101, "BF": 103, "BI": 107, "KH": 109, "CM": 113, "CA": 127, "CV": 131,
	"CF": 137, "TD": 139, "CL": 149, "CN": 151, "CO": 157, "KM": 163, "CG": 167, "CD": 173,
	"CR": 179, "CI": 181, "HR": 191, "CU": 193, "CY": 197, "CZ": 199, "DK": 211, "DJ": 223,
	"DM": 227, "DO": 229, "EC": 233, "EG": 239, "SV": 241, "GQ": 251, "ER": 257, "EE": 263,
	"SZ": 269, "ET": 271, "FJ": 277, "FI": 281, "FR": 283, "GA": 293, "GM": 307, "GE": 311,
	"DE": 313, "GH": 317, "GR": 331, "GD": 337, "GT": 347, "GN": 349, "GW": 353, "GY": 359,
	"HT": 367, "HN": 373, "HU": 379, "IS": 383, "IN": 389, "ID": 397, "IR": 401, "IQ": 409,
	"IE": 419, "IL": 421, "IT": 431, "JM": 433, "JP": 439, "JO": 443, "KZ": 449, "KE": 457,
	"KI": 461, "KP": 463, "KR": 467, "KW": 479, "KG": 487, "LA": 491, "LV": 499, "LB": 503,
	"LS": 509, "LR": 521, "LY": 523, "LI": 541, "LT": 547, "LU": 557, "MK": 563, "MG": 569,
	"MW": 571, "MY": 577, "MV": 587, "ML": 593, "MT": 599, "MH": 601, "MR": 607, "MU": 613,
	"MX": 617, "FM": 619, "MD": 631, "MC": 641, "MN": 643, "ME": 647, "MA": 653, "MZ": 659,
	"MM": 661, "NA": 673, "NR": 677, "NP": 683, "NL": 691, "NZ": 701, "NI": 709, "NE": 719,
	"NG": 727, "NO": 733, "OM": 739, "PK": 743, "PW": 751, "PA": 757, "PG": 761, "PY": 769,
	"PE": 773, "PH": 787, "PL": 797, "PT": 809, "QA": 811, "RO": 821, "RU": 823, "RW": 827,
	"KN": 829, "LC": 839, "VC": 853, "WS": 857, "SM": 859, "ST": 863, "SA": 877, "SN": 881,
	"RS": 883, "SC": 887, "SL": 907, "SG": 911, "SK": 919, "SI": 929, "SB": 937, "SO": 941,
	"ZA": 947, "ES": 953, "LK": 967, "SD": 971, "SR": 977, "SE": 983, "CH": 991, "SY": 997,
	"TJ": 1009, "TZ": 1013, "TH": 1019, "TL": 1021, "TG": 1031, "TO": 1033, "TT": 1039, "TN": 1049,
	"TR": 1051, "TM": 1061, "TV": 1063, "UG": 1069, "UA": 1087, "AE": 1091, "GB": 1093, "AF": 1097,
	"UY": 1103, "UZ": 1109, "VU": 1117, "VE": 1123, "VN": 1129, "YE": 1151, "ZM": 1153, "ZW": 1163,
}

// CountryPrime returns the prime for an alpha-2 code.
func CountryPrime(iso2 string) (uint64, bool) {
	p, ok := countryPrimes[strings.ToUpper(strings.TrimSpace(iso2))]
	return p, ok
}

// IsSupportedCountry reports whether credentials can be issued for iso2.
func IsSupportedCountry(iso2 string) bool {
	_, ok := CountryPrime(iso2)
	return ok
}

// NormalizeCountry resolves an alpha-2 code, alpha-3 code or English country
// name to alpha-2. Unknown input returns "".
func NormalizeCountry(s string) string {
	s = strings.TrimSpace(s)
	switch len(s) {
	case 2:
		if code := strings.ToUpper(s); IsSupportedCountry(code) {
			return code
		}
		return ""
	case 3:
		if code, ok := alpha3[strings.ToUpper(s)]; ok {
			return code
		}
	}
	return countryNames[strings.ToLower(s)]
}
