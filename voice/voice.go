package voice

import "fmt"

// Persona is a named synthesized-voice identity, matching the prebuilt
// voice names the speech backend accepts.
type Persona string

const (
	// PersonaZephyr is the brighter voice, also the fallback when
	// classification cannot decide.
	PersonaZephyr Persona = "Zephyr"
	// PersonaCharon is the deeper voice.
	PersonaCharon Persona = "Charon"
)

const DefaultPersona = PersonaZephyr

// Preference is the stored user choice for voice selection.
type Preference string

const (
	PreferenceAuto   Preference = "auto"
	PreferenceMale   Preference = "male"
	PreferenceFemale Preference = "female"
)

func ParsePreference(s string) (Preference, error) {
	switch Preference(s) {
	case PreferenceAuto, PreferenceMale, PreferenceFemale:
		return Preference(s), nil
	case "":
		return PreferenceAuto, nil
	}
	return "", fmt.Errorf("unknown voice preference %q", s)
}
