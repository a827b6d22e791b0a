package mapper

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/communityroots/resource-cli/internal/model"
)

// requiredFields are the canonical fields every normalized record must carry.
var requiredFields = []string{"name", "address", "city", "state"}

// categoryFields are raw keys probed, in order, when resolving the primary
// category.
var categoryFields = []string{"type", "category", "program_type", "facility_type", "service_type", "kind"}

// Normalize converts one raw record into a NormalizedResource using the
// source's mapping config. Pure and deterministic apart from the FetchedAt
// timestamp. Null, empty, and missing raw values are ignored entirely.
func Normalize(raw map[string]any, cfg *MappingConfig) (*model.NormalizedResource, error) {
	res := &model.NormalizedResource{
		VerificationLevel: cfg.VerificationLevel,
		Source: model.SourceInfo{
			SourceName:  cfg.SourceName,
			DisplayName: cfg.DisplayName,
			FetchedAt:   time.Now().UTC(),
		},
	}

	// Copy mapped fields in deterministic key order so later duplicate
	// targets resolve the same way on every run.
	rawKeys := make([]string, 0, len(cfg.FieldMap))
	for k := range cfg.FieldMap {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	for _, rawKey := range rawKeys {
		val, ok := lookupPath(raw, rawKey)
		if !ok {
			continue
		}
		setField(res, cfg.FieldMap[rawKey], val)
	}

	var missing []string
	for _, f := range requiredFields {
		if fieldEmpty(res, f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingRequiredFieldsError{SourceName: cfg.SourceName, Missing: missing}
	}

	category, rawCategories, ok := resolveCategory(raw, cfg)
	if !ok {
		return nil, &UnknownCategoryError{SourceName: cfg.SourceName, RawValues: rawCategories}
	}
	res.PrimaryCategory = category

	for i, svc := range res.ServicesOffered {
		res.ServicesOffered[i] = resolveService(svc, cfg.ServiceMap)
	}

	res.Tags = append(res.Tags, cfg.Tags...)

	res.Source.SourceID = DeriveSourceID(raw, res)

	return res, nil
}

// RawValue resolves the raw value mapped to the given canonical key, walking
// dot-paths the same way Normalize does. The second return reports whether
// any mapping for the key produced a value.
func RawValue(raw map[string]any, cfg *MappingConfig, canonical string) (any, bool) {
	for rawKey, canonicalKey := range cfg.FieldMap {
		if canonicalKey != canonical {
			continue
		}
		if val, ok := lookupPath(raw, rawKey); ok {
			return val, true
		}
	}
	return nil, false
}

// lookupPath resolves a possibly dot-delimited key against nested maps.
// Returns false for missing, nil, or empty-string values.
func lookupPath(raw map[string]any, path string) (any, bool) {
	cur := any(raw)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	if s, ok := cur.(string); ok && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return cur, true
}

// setField assigns a raw value to a canonical field. Unknown canonical keys
// are ignored so a config can carry forward-compatible targets.
func setField(res *model.NormalizedResource, key string, val any) {
	switch key {
	case "name":
		res.Name = asString(val)
	case "address":
		res.Address = asString(val)
	case "city":
		res.City = asString(val)
	case "state":
		res.State = strings.ToUpper(asString(val))
	case "zip_code":
		res.ZipCode = asString(val)
	case "phone":
		res.Phone = asString(val)
	case "email":
		res.Email = asString(val)
	case "website":
		res.Website = asString(val)
	case "description":
		res.Description = asString(val)
	case "eligibility_requirements":
		res.EligibilityRequirements = asString(val)
	case "fees":
		res.Fees = asString(val)
	case "services_offered":
		res.ServicesOffered = append(res.ServicesOffered, asStrings(val)...)
	case "languages":
		res.Languages = append(res.Languages, asStrings(val)...)
	case "accessibility_features":
		res.AccessibilityFeatures = append(res.AccessibilityFeatures, asStrings(val)...)
	case "latitude":
		if f, ok := asFloat(val); ok {
			res.Latitude = &f
		}
	case "longitude":
		if f, ok := asFloat(val); ok {
			res.Longitude = &f
		}
	case "county":
		res.County = asString(val)
	case "source.display_name":
		res.Source.DisplayName = asString(val)
	}
}

func fieldEmpty(res *model.NormalizedResource, key string) bool {
	switch key {
	case "name":
		return res.Name == ""
	case "address":
		return res.Address == ""
	case "city":
		return res.City == ""
	case "state":
		return res.State == ""
	}
	return false
}

// resolveCategory probes the raw category fields against the lookup table,
// falling back to the "*" wildcard. Returns every raw value probed for error
// reporting.
func resolveCategory(raw map[string]any, cfg *MappingConfig) (string, []string, bool) {
	lower := make(map[string]string, len(cfg.CategoryMap))
	for k, v := range cfg.CategoryMap {
		lower[strings.ToLower(k)] = v
	}

	var probed []string
	for _, field := range categoryFields {
		val, ok := lookupPath(raw, field)
		if !ok {
			continue
		}
		s := asString(val)
		probed = append(probed, s)
		if mapped, ok := lower[strings.ToLower(s)]; ok {
			return mapped, probed, true
		}
	}

	if def, ok := lower["*"]; ok {
		return def, probed, true
	}
	return "", probed, false
}

// resolveService maps one raw service string: exact match, then
// case-insensitive substring match on table keys, else passthrough.
func resolveService(rawService string, table map[string]string) string {
	if mapped, ok := table[rawService]; ok {
		return mapped
	}
	// Longest key first so the most specific mapping wins; ties break on
	// sorted order so the same raw string always resolves the same way.
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	lower := strings.ToLower(rawService)
	for _, k := range keys {
		if strings.Contains(lower, strings.ToLower(k)) {
			return table[k]
		}
	}
	return rawService
}

func asString(val any) string {
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func asStrings(val any) []string {
	switch v := val.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		// Comma or semicolon separated lists are common in CSV exports.
		sep := ","
		if strings.Contains(v, ";") {
			sep = ";"
		}
		var out []string
		for _, part := range strings.Split(v, sep) {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := asString(val); s != "" {
			return []string{s}
		}
		return nil
	}
}

func asFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
