package fingerprint

// Fingerprint describes one image: perceptual hashes for near-duplicate
// checks plus 0..1 scores for sharpness, exposure and overall quality.
type Fingerprint struct {
	PHash     string `json:"phash"` // 64-bit perceptual hash as hex string
	DHash     string `json:"dhash"` // 64-bit difference hash as hex string
	PHashBits uint64 `json:"-"`
	DHashBits uint64 `json:"-"`

	Sharpness float64 `json:"sharpness"`
	Exposure  float64 `json:"exposure"`
	Quality   float64 `json:"quality"`

	Width  int `json:"width"`
	Height int `json:"height"`
}
