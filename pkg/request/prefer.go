package request

import (
	"strings"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
)

// parsePrefer reads every Prefer header. Directives are token=value pairs;
// unknown tokens and unknown values are ignored per RFC 7240, later
// directives win over earlier ones.
func parsePrefer(headers []string) api.Preferences {
	var prefs api.Preferences

	for _, header := range headers {
		for _, directive := range strings.Split(header, ",") {
			token, value, _ := strings.Cut(strings.TrimSpace(directive), "=")
			value = strings.TrimSpace(value)

			switch strings.ToLower(strings.TrimSpace(token)) {
			case "count":
				switch value {
				case "exact":
					prefs.Count = api.CountExact
				case "planned":
					prefs.Count = api.CountPlanned
				case "estimated":
					prefs.Count = api.CountEstimated
				}
			case "return":
				switch value {
				case "minimal":
					prefs.Return = api.ReturnMinimal
				case "headers-only":
					prefs.Return = api.ReturnHeadersOnly
				case "representation":
					prefs.Return = api.ReturnRepresentation
				}
			case "resolution":
				switch value {
				case "merge-duplicates":
					prefs.Resolution = api.ResolutionMergeDuplicates
				case "ignore-duplicates":
					prefs.Resolution = api.ResolutionIgnoreDuplicates
				}
			case "params":
				if value == "multiple-objects" {
					prefs.Params = api.ParamsMultipleObjects
				}
			case "tx":
				switch value {
				case "commit":
					prefs.Tx = api.TxCommit
				case "rollback":
					prefs.Tx = api.TxRollback
				}
			}
		}
	}
	return prefs
}

// AppliedPreferences renders the Preference-Applied header value for the
// directives the gateway honored on this request.
func AppliedPreferences(prefs api.Preferences) string {
	var parts []string

	switch prefs.Return {
	case api.ReturnHeadersOnly:
		parts = append(parts, "return=headers-only")
	case api.ReturnRepresentation:
		parts = append(parts, "return=representation")
	}
	switch prefs.Resolution {
	case api.ResolutionMergeDuplicates:
		parts = append(parts, "resolution=merge-duplicates")
	case api.ResolutionIgnoreDuplicates:
		parts = append(parts, "resolution=ignore-duplicates")
	}
	if prefs.Params == api.ParamsMultipleObjects {
		parts = append(parts, "params=multiple-objects")
	}
	switch prefs.Tx {
	case api.TxCommit:
		parts = append(parts, "tx=commit")
	case api.TxRollback:
		parts = append(parts, "tx=rollback")
	}
	return strings.Join(parts, ", ")
}
