package model

import "strings"

// License is the attribution shown for a model before it is used.
type License struct {
	Type            string `json:"license_type"`
	URL             string `json:"license_url,omitempty"`
	CopyrightHolder string `json:"copyright_holder,omitempty"`
	Text            string `json:"license_text,omitempty"`
	Known           bool   `json:"known"`
}

var knownLicenses = map[string]License{
	"parakeet-0.6b": {
		Type:            "Apache-2.0",
		URL:             "https://github.com/NVIDIA/NeMo/blob/main/LICENSE",
		CopyrightHolder: "NVIDIA Corporation",
		Text:            "Apache License 2.0",
		Known:           true,
	},
	"distil-whisper": {
		Type:            "Apache-2.0",
		URL:             "https://huggingface.co/distil-whisper",
		CopyrightHolder: "Hugging Face / OpenAI",
		Text:            "Apache License 2.0",
		Known:           true,
	},
	"whisper": {
		Type:            "MIT",
		URL:             "https://github.com/openai/whisper/blob/main/LICENSE",
		CopyrightHolder: "OpenAI",
		Text:            "MIT License",
		Known:           true,
	},
	"vosk": {
		Type:            "Apache-2.0",
		URL:             "https://github.com/alphacep/vosk-api/blob/master/LICENSE",
		CopyrightHolder: "Alpha Cephei Inc.",
		Text:            "Apache License 2.0",
		Known:           true,
	},
}

// prefix matches are tried in this order so "distil-whisper-small" does not
// fall through to the plain whisper entry.
var licensePrefixes = []string{"parakeet-0.6b", "distil-whisper", "whisper", "vosk"}

// UnknownLicense is returned for models nobody has vetted.
func UnknownLicense() License {
	return License{
		Type: "Unknown",
		Text: "License information not available. User is responsible for verifying license compliance.",
	}
}

// LookupLicense resolves a license by exact id, then id prefix, then by the
// engine family named in the id.
func LookupLicense(id string) (License, bool) {
	if l, ok := knownLicenses[id]; ok {
		return l, true
	}
	for _, p := range licensePrefixes {
		if strings.HasPrefix(id, p) {
			return knownLicenses[p], true
		}
	}
	lower := strings.ToLower(id)
	if strings.Contains(lower, "vosk") {
		return knownLicenses["vosk"], true
	}
	if strings.Contains(lower, "whisper") {
		return knownLicenses["whisper"], true
	}
	return License{}, false
}

// License returns the manifest's declared license, filling gaps from the
// registry, or UnknownLicense when neither knows.
func (m *Manifest) License() License {
	l, ok := LookupLicense(m.ID)
	if !ok {
		l = UnknownLicense()
	}
	if m.LicenseType != "" {
		l.Type = m.LicenseType
		l.Known = true
	}
	if m.LicenseURL != "" {
		l.URL = m.LicenseURL
	}
	if m.CopyrightHolder != "" {
		l.CopyrightHolder = m.CopyrightHolder
	}
	return l
}
