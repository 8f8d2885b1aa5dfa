package catalog

import (
	"github.com/cellarworks/cellar-cli/internal/model"
)

// coreFields maps attribute keys to accessors over the record's plain
// columns. Core fields are tracked in Attributes too so every field has
// confidence metadata to merge against.
var coreFields = []struct {
	key string
	get func(*model.WineRecord) string
	set func(*model.WineRecord, string)
}{
	{"name", func(r *model.WineRecord) string { return r.Name }, func(r *model.WineRecord, v string) { r.Name = v }},
	{"vintage", func(r *model.WineRecord) string { return r.Vintage }, func(r *model.WineRecord, v string) { r.Vintage = v }},
	{"producer", func(r *model.WineRecord) string { return r.Producer }, func(r *model.WineRecord, v string) { r.Producer = v }},
	{"region", func(r *model.WineRecord) string { return r.Region }, func(r *model.WineRecord, v string) { r.Region = v }},
	{"country", func(r *model.WineRecord) string { return r.Country }, func(r *model.WineRecord, v string) { r.Country = v }},
	{"varietals", func(r *model.WineRecord) string { return r.Varietals }, func(r *model.WineRecord, v string) { r.Varietals = v }},
}

func coreValue(ex *model.Extraction, key string) string {
	switch key {
	case "name":
		return ex.Name
	case "vintage":
		return ex.Vintage
	case "producer":
		return ex.Producer
	case "region":
		return ex.Region
	case "country":
		return ex.Country
	case "varietals":
		return ex.Varietals
	}
	return ""
}

// mergeExtraction folds an extraction into an existing record. A field
// is overwritten only when the stored value is empty or the incoming
// confidence is at least as high as the stored one; blanks never clobber
// values, and a low-confidence re-ingestion never downgrades a field.
// Reports whether the record changed.
func mergeExtraction(rec *model.WineRecord, ex *model.Extraction) bool {
	if rec.Attributes == nil {
		rec.Attributes = model.Attributes{}
	}

	changed := false

	for _, cf := range coreFields {
		newVal := coreValue(ex, cf.key)
		if newVal == "" {
			continue
		}
		stored, ok := rec.Attributes[cf.key]
		if ok && cf.get(rec) != "" && ex.Confidence < stored.Confidence {
			continue
		}
		if cf.get(rec) == newVal && ok && stored.Confidence >= ex.Confidence {
			continue
		}
		cf.set(rec, newVal)
		rec.Attributes[cf.key] = model.FieldValue{Value: newVal, Confidence: ex.Confidence, Source: ex.Source}
		changed = true
	}

	for key, fv := range ex.Attributes {
		if fv.Value == "" {
			continue
		}
		stored, ok := rec.Attributes[key]
		if ok && stored.Value != "" && fv.Confidence < stored.Confidence {
			continue
		}
		if ok && stored == fv {
			continue
		}
		rec.Attributes[key] = fv
		changed = true
	}

	return changed
}

// recordFromExtraction builds a fresh record for a first-seen dedup key.
func recordFromExtraction(id string, ex *model.Extraction) *model.WineRecord {
	rec := &model.WineRecord{
		ID:         id,
		DedupKey:   DedupKey(ex.Name, ex.Vintage, ex.Producer),
		Attributes: model.Attributes{},
	}
	mergeExtraction(rec, ex)
	return rec
}
