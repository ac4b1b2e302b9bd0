package normalize

import "strings"

// countryNames maps ISO-3166 alpha-2 codes to display names. Name lookups
// go through countryISO, which also carries the aliases.
var countryNames = map[string]string{
	"AF": "Afghanistan",
	"AL": "Albania",
	"DZ": "Algeria",
	"AO": "Angola",
	"AR": "Argentina",
	"AM": "Armenia",
	"AU": "Australia",
	"AT": "Austria",
	"AZ": "Azerbaijan",
	"BD": "Bangladesh",
	"BY": "Belarus",
	"BE": "Belgium",
	"BJ": "Benin",
	"BO": "Bolivia",
	"BA": "Bosnia and Herzegovina",
	"BW": "Botswana",
	"BR": "Brazil",
	"BG": "Bulgaria",
	"BF": "Burkina Faso",
	"BI": "Burundi",
	"CV": "Cabo Verde",
	"KH": "Cambodia",
	"CM": "Cameroon",
	"CA": "Canada",
	"CF": "Central African Republic",
	"TD": "Chad",
	"CL": "Chile",
	"CN": "China",
	"CO": "Colombia",
	"CG": "Congo",
	"CR": "Costa Rica",
	"CI": "Côte d'Ivoire",
	"HR": "Croatia",
	"CU": "Cuba",
	"CY": "Cyprus",
	"CZ": "Czechia",
	"CD": "Democratic Republic of the Congo",
	"DK": "Denmark",
	"DJ": "Djibouti",
	"DO": "Dominican Republic",
	"EC": "Ecuador",
	"EG": "Egypt",
	"SV": "El Salvador",
	"ER": "Eritrea",
	"EE": "Estonia",
	"SZ": "Eswatini",
	"ET": "Ethiopia",
	"FJ": "Fiji",
	"FI": "Finland",
	"FR": "France",
	"GA": "Gabon",
	"GM": "Gambia",
	"GE": "Georgia",
	"DE": "Germany",
	"GH": "Ghana",
	"GR": "Greece",
	"GT": "Guatemala",
	"GN": "Guinea",
	"HT": "Haiti",
	"HN": "Honduras",
	"HU": "Hungary",
	"IS": "Iceland",
	"IN": "India",
	"ID": "Indonesia",
	"IR": "Iran",
	"IQ": "Iraq",
	"IE": "Ireland",
	"IL": "Israel",
	"IT": "Italy",
	"JM": "Jamaica",
	"JP": "Japan",
	"JO": "Jordan",
	"KZ": "Kazakhstan",
	"KE": "Kenya",
	"XK": "Kosovo",
	"KW": "Kuwait",
	"KG": "Kyrgyzstan",
	"LA": "Laos",
	"LV": "Latvia",
	"LB": "Lebanon",
	"LS": "Lesotho",
	"LR": "Liberia",
	"LY": "Libya",
	"LT": "Lithuania",
	"LU": "Luxembourg",
	"MG": "Madagascar",
	"MW": "Malawi",
	"MY": "Malaysia",
	"ML": "Mali",
	"MT": "Malta",
	"MR": "Mauritania",
	"MX": "Mexico",
	"MD": "Moldova",
	"MN": "Mongolia",
	"ME": "Montenegro",
	"MA": "Morocco",
	"MZ": "Mozambique",
	"MM": "Myanmar",
	"NA": "Namibia",
	"NP": "Nepal",
	"NL": "Netherlands",
	"NZ": "New Zealand",
	"NI": "Nicaragua",
	"NE": "Niger",
	"NG": "Nigeria",
	"MK": "North Macedonia",
	"NO": "Norway",
	"PK": "Pakistan",
	"PS": "Palestine",
	"PA": "Panama",
	"PG": "Papua New Guinea",
	"PY": "Paraguay",
	"PE": "Peru",
	"PH": "Philippines",
	"PL": "Poland",
	"PT": "Portugal",
	"QA": "Qatar",
	"RO": "Romania",
	"RU": "Russia",
	"RW": "Rwanda",
	"SA": "Saudi Arabia",
	"SN": "Senegal",
	"RS": "Serbia",
	"SL": "Sierra Leone",
	"SG": "Singapore",
	"SK": "Slovakia",
	"SI": "Slovenia",
	"SO": "Somalia",
	"ZA": "South Africa",
	"KR": "South Korea",
	"SS": "South Sudan",
	"ES": "Spain",
	"LK": "Sri Lanka",
	"SD": "Sudan",
	"SE": "Sweden",
	"CH": "Switzerland",
	"SY": "Syria",
	"TW": "Taiwan",
	"TJ": "Tajikistan",
	"TZ": "Tanzania",
	"TH": "Thailand",
	"TL": "Timor-Leste",
	"TG": "Togo",
	"TN": "Tunisia",
	"TR": "Turkey",
	"TM": "Turkmenistan",
	"UG": "Uganda",
	"UA": "Ukraine",
	"AE": "United Arab Emirates",
	"GB": "United Kingdom",
	"US": "United States",
	"UY": "Uruguay",
	"UZ": "Uzbekistan",
	"VE": "Venezuela",
	"VN": "Vietnam",
	"YE": "Yemen",
	"ZM": "Zambia",
	"ZW": "Zimbabwe",
}

// countryAliases carries extra spellings seen on source sites: UN-register
// long forms, abbreviations, and pre-rename names.
var countryAliases = map[string]string{
	"bosnia & herzegovina":         "BA",
	"burma":                        "MM",
	"cape verde":                   "CV",
	"cote d'ivoire":                "CI",
	"czech republic":               "CZ",
	"democratic republic of congo": "CD",
	"dr congo":                     "CD",
	"drc":                          "CD",
	"east timor":                   "TL",
	"england":                      "GB",
	"great britain":                "GB",
	"ivory coast":                  "CI",
	"korea":                        "KR",
	"kyrgyz republic":              "KG",
	"macedonia":                    "MK",
	"republic of korea":            "KR",
	"republic of moldova":          "MD",
	"republic of the congo":        "CG",
	"russian federation":           "RU",
	"state of palestine":           "PS",
	"swaziland":                    "SZ",
	"syrian arab republic":         "SY",
	"the gambia":                   "GM",
	"the netherlands":              "NL",
	"the philippines":              "PH",
	"turkiye":                      "TR",
	"türkiye":                      "TR",
	"u.s.":                         "US",
	"u.s.a.":                       "US",
	"uae":                          "AE",
	"uk":                           "GB",
	"united republic of tanzania":  "TZ",
	"united states of america":     "US",
	"usa":                          "US",
	"viet nam":                     "VN",
}

// countryISO is the lookup table: lowercased display names plus aliases.
var countryISO = func() map[string]string {
	m := make(map[string]string, len(countryNames)+len(countryAliases))
	for iso, name := range countryNames {
		m[strings.ToLower(name)] = iso
	}
	for alias, iso := range countryAliases {
		m[alias] = iso
	}
	return m
}()

// ISOForCountry resolves a country name, common alias, or alpha-2 code to
// the alpha-2 code.
func ISOForCountry(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if len(s) == 2 {
		iso := strings.ToUpper(s)
		if _, ok := countryNames[iso]; ok {
			return iso, true
		}
	}
	iso, ok := countryISO[strings.ToLower(s)]
	return iso, ok
}

// CountryForISO returns the display name for an alpha-2 code.
func CountryForISO(iso string) (string, bool) {
	name, ok := countryNames[strings.ToUpper(strings.TrimSpace(iso))]
	return name, ok
}
