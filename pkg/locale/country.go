package locale

import (
	"strings"
)

const (
	DefaultTimezone = "UTC"
	DefaultRegion   = "CN"
)

type Country struct {
	Code            string   // ISO 3166-1 alpha-2 country code (e.g., "CN", "US")
	Name            string   // Human-readable country name
	PhonePrefixes   []string // Valid phone number prefixes (e.g., ["+86", "86"])
	DefaultTimezone string   // IANA timezone identifier (e.g., "Asia/Shanghai")
}

var (
	Countries = map[string]Country{
		"CN": {
			Code:            "CN",
			Name:            "China",
			PhonePrefixes:   []string{"+86", "86"},
			DefaultTimezone: "Asia/Shanghai",
		},
		"IL": {
			Code:            "IL",
			Name:            "Israel",
			PhonePrefixes:   []string{"+972", "972"},
			DefaultTimezone: "Asia/Jerusalem",
		},
		"US": {
			Code:            "US",
			Name:            "United States",
			PhonePrefixes:   []string{"+1", "1"},
			DefaultTimezone: "America/New_York",
		},
	}

	TimeZoneTags = map[string][]string{
		"CN": {"Asia/Shanghai", "Asia/Chongqing", "Asia/Harbin", "Asia/Urumqi", "PRC"},
		"IL": {"Asia/Jerusalem", "Israel", "Asia/Tel_Aviv"},
		"US": {"America/New_York", "America/Chicago", "America/Denver", "America/Los_Angeles", "US/Eastern", "US/Pacific"},
	}
)

// DetectRegion maps the clinic timezone to the region used when parsing
// locally-formatted phone numbers.
func DetectRegion(tz string) string {
	for region, zones := range TimeZoneTags {
		for _, z := range zones {
			if strings.EqualFold(tz, z) {
				return region
			}
		}
	}
	return DefaultRegion
}
