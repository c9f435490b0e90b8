package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAttributes() *Attributes {
	return &Attributes{
		GPUVendor:   "NVIDIA Corporation",
		GPURenderer: "NVIDIA GeForce GTX 1650/PCIe/SSE2",
		CanvasHash:  "c4nv4s-h4sh",
		AudioHash:   "4ud10-h4sh",
		CPUCores:    8,
		MemoryClass: 8,
		Platform:    "Win32",
		Timezone:    "Africa/Cairo",
	}
}

func TestHash_Deterministic(t *testing.T) {
	a := testAttributes()
	b := testAttributes()

	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 64)
}

func TestHash_IndependentOfInputOrder(t *testing.T) {
	// Same values arriving as JSON with different key ordering must decode
	// into the same hash.
	first := []byte(`{"gpu_vendor":"Intel","gpu_renderer":"Iris Xe","canvas_hash":"c1","audio_hash":"a1","cpu_cores":4,"memory_class":8,"platform":"Linux x86_64","timezone":"Africa/Cairo"}`)
	second := []byte(`{"timezone":"Africa/Cairo","platform":"Linux x86_64","memory_class":8,"cpu_cores":4,"audio_hash":"a1","canvas_hash":"c1","gpu_renderer":"Iris Xe","gpu_vendor":"Intel"}`)

	var a, b Attributes
	require.NoError(t, json.Unmarshal(first, &a))
	require.NoError(t, json.Unmarshal(second, &b))

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHash_ChangesWithAnyComponent(t *testing.T) {
	base := testAttributes()

	changed := testAttributes()
	changed.Timezone = "Europe/Berlin"

	assert.NotEqual(t, base.Hash(), changed.Hash())
}

func TestSimilarity_Identical(t *testing.T) {
	a := testAttributes()
	b := testAttributes()

	assert.Equal(t, 1.0, Similarity(a, b))
}

func TestSimilarity_PartialMatch(t *testing.T) {
	stored := testAttributes()

	presented := testAttributes()
	presented.CanvasHash = "different-canvas"
	assert.InDelta(t, 0.875, Similarity(stored, presented), 1e-9)

	presented.AudioHash = "different-audio"
	assert.InDelta(t, 0.75, Similarity(stored, presented), 1e-9)
}

func TestSimilarity_CompletelyDifferent(t *testing.T) {
	stored := testAttributes()
	presented := &Attributes{
		GPUVendor:   "Apple",
		GPURenderer: "Apple M2",
		CanvasHash:  "x",
		AudioHash:   "y",
		CPUCores:    10,
		MemoryClass: 16,
		Platform:    "MacIntel",
		Timezone:    "America/New_York",
	}

	assert.Equal(t, 0.0, Similarity(stored, presented))
}

func TestSimilarity_NilInputs(t *testing.T) {
	assert.Equal(t, 0.0, Similarity(nil, testAttributes()))
	assert.Equal(t, 0.0, Similarity(testAttributes(), nil))
}

func TestDecode_RoundTrip(t *testing.T) {
	a := testAttributes()

	decoded, err := Decode(a.Canonical())
	require.NoError(t, err)

	assert.Equal(t, a, decoded)
	assert.Equal(t, a.Hash(), decoded.Hash())
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	raw := []byte(`{"gpu_vendor":"Intel","gpu_renderer":"Iris Xe","canvas_hash":"c1","audio_hash":"a1","cpu_cores":4,"memory_class":8,"platform":"Linux x86_64","timezone":"Africa/Cairo","screen_resolution":"1920x1080","user_agent":"Mozilla/5.0"}`)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "Intel", decoded.GPUVendor)
	assert.Equal(t, 4, decoded.CPUCores)
}

func TestDecode_Empty(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)
}
