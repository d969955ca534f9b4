package ai

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

//go:embed prompts/photo_labels.txt
var photoLabelsPrompt string

const (
	// maxParseRetries bounds how often a model is asked to fix broken JSON.
	maxParseRetries = 3

	// labelImageSize is the longest edge sent to hosted models.
	labelImageSize = 800
)

func jsonFixMessage(err error) string {
	return fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. Remember to escape quotes inside strings with backslash.", err)
}

// parseLabelResult decodes a model answer and normalizes it: names are
// lowercased and trimmed, duplicates keep the highest confidence, confidences
// are clamped to 0..1 and labels are sorted by confidence. Without an explicit
// primary category the top label is used.
func parseLabelResult(content string) (*LabelResult, error) {
	var raw LabelResult
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, err
	}

	best := make(map[string]float64, len(raw.Labels))
	for _, l := range raw.Labels {
		name := strings.ToLower(strings.TrimSpace(l.Name))
		if name == "" {
			continue
		}
		conf := clamp01(l.Confidence)
		if prev, ok := best[name]; !ok || conf > prev {
			best[name] = conf
		}
	}

	result := &LabelResult{
		Labels:            make([]Label, 0, len(best)),
		PrimaryCategory:   strings.ToLower(strings.TrimSpace(raw.PrimaryCategory)),
		PrimaryConfidence: clamp01(raw.PrimaryConfidence),
	}
	for name, conf := range best {
		result.Labels = append(result.Labels, Label{Name: name, Confidence: conf})
	}
	sort.Slice(result.Labels, func(i, j int) bool {
		if result.Labels[i].Confidence != result.Labels[j].Confidence {
			return result.Labels[i].Confidence > result.Labels[j].Confidence
		}
		return result.Labels[i].Name < result.Labels[j].Name
	})

	if result.PrimaryCategory == "" && len(result.Labels) > 0 {
		result.PrimaryCategory = result.Labels[0].Name
		result.PrimaryConfidence = result.Labels[0].Confidence
	}
	return result, nil
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}
