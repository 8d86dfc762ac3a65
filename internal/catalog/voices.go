package catalog

import "kokorod/pkg/types"

var builtinVoices = []types.Voice{
	{ID: "af_heart", Name: "Heart", Gender: types.GenderFemale, Language: "en", Accent: "American", Description: "Warm, friendly female voice with clear articulation"},
	{ID: "af_bella", Name: "Bella", Gender: types.GenderFemale, Language: "en", Accent: "American", Description: "Expressive female voice with natural intonation"},
	{ID: "af_nicole", Name: "Nicole", Gender: types.GenderFemale, Language: "en", Accent: "American", Description: "Professional female voice, great for narration"},
	{ID: "af_sarah", Name: "Sarah", Gender: types.GenderFemale, Language: "en", Accent: "American", Description: "Soft, soothing female voice"},
	{ID: "af_sky", Name: "Sky", Gender: types.GenderFemale, Language: "en", Accent: "American", Description: "Young, energetic female voice"},
	{ID: "am_adam", Name: "Adam", Gender: types.GenderMale, Language: "en", Accent: "American", Description: "Deep, authoritative male voice"},
	{ID: "am_michael", Name: "Michael", Gender: types.GenderMale, Language: "en", Accent: "American", Description: "Warm, conversational male voice"},
	{ID: "bf_emma", Name: "Emma", Gender: types.GenderFemale, Language: "en", Accent: "British", Description: "Elegant British female voice"},
	{ID: "bf_isabella", Name: "Isabella", Gender: types.GenderFemale, Language: "en", Accent: "British", Description: "Refined British female voice with RP accent"},
	{ID: "bm_george", Name: "George", Gender: types.GenderMale, Language: "en", Accent: "British", Description: "Distinguished British male voice"},
	{ID: "bm_lewis", Name: "Lewis", Gender: types.GenderMale, Language: "en", Accent: "British", Description: "Friendly British male voice"},
}
