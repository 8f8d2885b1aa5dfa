package model

import "time"

// ExtractionSource identifies which extractor produced a field value.
type ExtractionSource string

const (
	SourceClaude   ExtractionSource = "claude"
	SourceFallback ExtractionSource = "fallback"
	SourceManual   ExtractionSource = "manual"
)

// FieldValue is a single extracted attribute with confidence and provenance.
type FieldValue struct {
	Value      string           `json:"value"`
	Confidence float64          `json:"confidence"`
	Source     ExtractionSource `json:"source"`
}

// Attributes is the structured bag of extracted wine fields keyed by
// attribute name (style, price, aroma, taste, pairing).
type Attributes map[string]FieldValue

// Extraction is the normalized output of one extractor pass over a
// candidate line. Name is the only required field.
type Extraction struct {
	Name       string           `json:"name"`
	Vintage    string           `json:"vintage,omitempty"`
	Producer   string           `json:"producer,omitempty"`
	Region     string           `json:"region,omitempty"`
	Country    string           `json:"country,omitempty"`
	Varietals  string           `json:"varietals,omitempty"`
	Attributes Attributes       `json:"attributes,omitempty"`
	Confidence float64          `json:"confidence"`
	Source     ExtractionSource `json:"source"`
}

// Profile holds enrichment-generated tasting and serving metadata.
type Profile struct {
	TastingNotes     string `json:"tasting_notes"`
	FlavorNotes      string `json:"flavor_notes,omitempty"`
	AromaNotes       string `json:"aroma_notes,omitempty"`
	Body             string `json:"body,omitempty"`
	FoodPairing      string `json:"food_pairing,omitempty"`
	ServingTemp      string `json:"serving_temp,omitempty"`
	AgingPotential   string `json:"aging_potential,omitempty"`
	BlendDescription string `json:"blend_description,omitempty"`
	Confidence       string `json:"confidence,omitempty"` // "low", "medium", "high"
}

// WineRecord is the catalog entity. DedupKey is unique across the catalog;
// two lines normalizing to the same (name, vintage, producer) triple merge
// into one record.
type WineRecord struct {
	ID             string     `json:"id"`
	DedupKey       string     `json:"dedup_key"`
	Name           string     `json:"name"`
	Vintage        string     `json:"vintage,omitempty"`
	Producer       string     `json:"producer,omitempty"`
	Region         string     `json:"region,omitempty"`
	Country        string     `json:"country,omitempty"`
	Varietals      string     `json:"varietals,omitempty"`
	Attributes     Attributes `json:"attributes,omitempty"`
	Verified       bool       `json:"verified"`
	VerifiedSource string     `json:"verified_source,omitempty"`
	Profile        *Profile   `json:"profile,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
