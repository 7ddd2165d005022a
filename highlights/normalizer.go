package highlights

import "github.com/google/uuid"

// The store holds several generations of write shapes: plain string fields,
// {value, references} fields, single-drug days and multi-drug days. Every
// read goes through these functions, which accept the closed union of all
// observed shapes and default to blank for anything outside it. They never
// return an error.

// DisplayValue resolves one stored field value to its display string.
// Strings pass through unchanged, objects with a string "value" yield that
// value, everything else yields "".
func DisplayValue(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["value"].(string); ok {
			return s
		}
		return ""
	case InfoWithReference:
		return v.Value
	case *InfoWithReference:
		if v == nil {
			return ""
		}
		return v.Value
	default:
		return ""
	}
}

// NormalizeDrug converts one stored drug record of any historical shape into
// the canonical DrugHighlight. Missing or malformed fields come out as empty
// strings. A missing id is replaced with a fresh one, so the result is unique
// only within this normalization call, not across reloads.
func NormalizeDrug(raw any) DrugHighlight {
	if d, ok := raw.(DrugHighlight); ok {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		if d.OffLabelUse.References == nil {
			d.OffLabelUse.References = []string{}
		}
		return d
	}

	m, _ := raw.(map[string]any)
	d := DrugHighlight{
		DrugName:              DisplayValue(m["drugName"]),
		DrugClass:             DisplayValue(m["drugClass"]),
		Mechanism:             DisplayValue(m["mechanism"]),
		Uses:                  DisplayValue(m["uses"]),
		SideEffects:           DisplayValue(m["sideEffects"]),
		RouteOfAdministration: DisplayValue(m["routeOfAdministration"]),
		Dose:                  DisplayValue(m["dose"]),
		DosageForm:            DisplayValue(m["dosageForm"]),
		HalfLife:              DisplayValue(m["halfLife"]),
		ClinicalUses:          DisplayValue(m["clinicalUses"]),
		Contraindication:      DisplayValue(m["contraindication"]),
		OffLabelUse:           normalizeOffLabel(m["offLabelUse"]),
		FunFact:               DisplayValue(m["funFact"]),
	}

	if id, ok := m["id"].(string); ok && id != "" {
		d.ID = id
	} else {
		d.ID = uuid.NewString()
	}

	return d
}

// normalizeOffLabel applies the dual-shape rule to the offLabelUse field:
// plain strings gain an empty reference list, objects keep their references
// when those form a list, and anything else collapses to a blank value.
func normalizeOffLabel(raw any) InfoWithReference {
	switch v := raw.(type) {
	case string:
		return InfoWithReference{Value: v, References: []string{}}
	case InfoWithReference:
		if v.References == nil {
			v.References = []string{}
		}
		return v
	case map[string]any:
		if _, ok := v["value"]; ok {
			return InfoWithReference{
				Value:      DisplayValue(raw),
				References: referenceList(v["references"]),
			}
		}
		return InfoWithReference{Value: "", References: []string{}}
	default:
		return InfoWithReference{Value: "", References: []string{}}
	}
}

// referenceList extracts the string entries of a stored reference list.
func referenceList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// NormalizeDay converts one stored day record into the canonical
// DailyHighlight. The supplied date key always wins over any date carried
// inside the record. A record without an ordered drugs list comes out as an
// empty day.
func NormalizeDay(date string, raw any) DailyHighlight {
	day := DailyHighlight{Date: date, Drugs: []DrugHighlight{}}

	switch v := raw.(type) {
	case DailyHighlight:
		day.Drugs = make([]DrugHighlight, len(v.Drugs))
		for i := range v.Drugs {
			day.Drugs[i] = NormalizeDrug(v.Drugs[i])
		}
	case map[string]any:
		drugs, ok := v["drugs"].([]any)
		if !ok {
			return day
		}
		day.Drugs = make([]DrugHighlight, 0, len(drugs))
		for _, d := range drugs {
			day.Drugs = append(day.Drugs, NormalizeDrug(d))
		}
	}

	return day
}

// LiftLegacyDay wraps a legacy single-drug day record into a one-drug day so
// it can flow through NormalizeDay. A record qualifies when it carries a
// drugName but no drugs list; anything else passes through unchanged, so the
// lift is idempotent.
func LiftLegacyDay(raw any) any {
	m, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	if _, ok := m["drugs"]; ok {
		return raw
	}
	if _, ok := m["drugName"]; !ok {
		return raw
	}

	lifted := map[string]any{"drugs": []any{m}}
	if date, ok := m["date"]; ok {
		lifted["date"] = date
	}
	return lifted
}
