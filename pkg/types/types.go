package types

// Gender is the voice gender category.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderNeutral Gender = "neutral"
)

// Voice is an immutable catalog entry describing a synthesis voice.
type Voice struct {
	// Stable identifier used in requests, e.g. af_heart.
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Gender      Gender `json:"gender" yaml:"gender"`
	Language    string `json:"language" yaml:"language"`
	Accent      string `json:"accent" yaml:"accent"`
	Description string `json:"description" yaml:"description"`
	// Optional URL of a short audio sample.
	SampleURL string `json:"sample_url,omitempty" yaml:"sample_url,omitempty"`
}
