// Package fingerprint derives a stable device identity hash from a fixed set
// of hardware and browser attributes, and scores similarity between two
// attribute sets. Volatile signals (screen resolution, full user agent) are
// deliberately excluded so the hash survives routine browser updates.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MajorDriftThreshold is the similarity below which a fingerprint change is
// treated as a hardware change rather than a browser update.
const MajorDriftThreshold = 0.80

// attributeCount is the number of stable components the hash is built from.
const attributeCount = 8

// Attributes holds the eight stable components of a device fingerprint.
// Unknown client fields are ignored at decode time; only these participate
// in the hash.
type Attributes struct {
	GPUVendor   string `json:"gpu_vendor"`
	GPURenderer string `json:"gpu_renderer"`
	CanvasHash  string `json:"canvas_hash"`
	AudioHash   string `json:"audio_hash"`
	CPUCores    int    `json:"cpu_cores"`
	MemoryClass int    `json:"memory_class"`
	Platform    string `json:"platform"`
	Timezone    string `json:"timezone"`
}

// Canonical returns the key-sorted JSON serialization of the attributes.
// encoding/json emits struct fields in declaration order, so the canonical
// form is built from an explicit sorted map to stay independent of field
// ordering in the struct definition.
func (a *Attributes) Canonical() []byte {
	m := map[string]any{
		"audio_hash":   a.AudioHash,
		"canvas_hash":  a.CanvasHash,
		"cpu_cores":    a.CPUCores,
		"gpu_renderer": a.GPURenderer,
		"gpu_vendor":   a.GPUVendor,
		"memory_class": a.MemoryClass,
		"platform":     a.Platform,
		"timezone":     a.Timezone,
	}
	// json.Marshal sorts map keys, which makes the output deterministic.
	data, err := json.Marshal(m)
	if err != nil {
		// A map of strings and ints cannot fail to marshal.
		panic(fmt.Sprintf("canonicalize fingerprint: %v", err))
	}
	return data
}

// Hash returns the hex SHA-256 of the canonical serialization. The result is
// deterministic and independent of attribute insertion order.
func (a *Attributes) Hash() string {
	sum := sha256.Sum256(a.Canonical())
	return hex.EncodeToString(sum[:])
}

// Similarity returns the fraction of the eight components that match exactly
// between a stored and a presented attribute set, in [0, 1]. The score is
// intentionally coarse: any component changing usually means either a browser
// update (minor) or different hardware (major), and weighting adds nothing.
func Similarity(stored, presented *Attributes) float64 {
	if stored == nil || presented == nil {
		return 0
	}

	matches := 0
	if stored.GPUVendor == presented.GPUVendor {
		matches++
	}
	if stored.GPURenderer == presented.GPURenderer {
		matches++
	}
	if stored.CanvasHash == presented.CanvasHash {
		matches++
	}
	if stored.AudioHash == presented.AudioHash {
		matches++
	}
	if stored.CPUCores == presented.CPUCores {
		matches++
	}
	if stored.MemoryClass == presented.MemoryClass {
		matches++
	}
	if stored.Platform == presented.Platform {
		matches++
	}
	if stored.Timezone == presented.Timezone {
		matches++
	}

	return float64(matches) / float64(attributeCount)
}

// Decode parses stored canonical attribute JSON back into Attributes.
func Decode(data []byte) (*Attributes, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty fingerprint data")
	}
	var a Attributes
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode fingerprint data: %w", err)
	}
	return &a, nil
}
