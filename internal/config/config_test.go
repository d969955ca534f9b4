package config

import (
	"testing"
)

func TestGetModelPricing_KnownModel(t *testing.T) {
	cfg := Load() // Load actual config with embedded prices

	pricing := cfg.GetModelPricing("gpt-4.1-mini")

	if pricing.Standard.Input != 0.40 {
		t.Errorf("expected standard input price 0.40, got %f", pricing.Standard.Input)
	}
	if pricing.Standard.Output != 1.60 {
		t.Errorf("expected standard output price 1.60, got %f", pricing.Standard.Output)
	}
	if pricing.Batch.Input != 0.20 {
		t.Errorf("expected batch input price 0.20, got %f", pricing.Batch.Input)
	}
}

func TestGetModelPricing_GeminiModel(t *testing.T) {
	cfg := Load()

	pricing := cfg.GetModelPricing("gemini-2.5-flash")

	if pricing.Standard.Input != 0.30 {
		t.Errorf("expected gemini standard input 0.30, got %f", pricing.Standard.Input)
	}
	if pricing.Standard.Output != 2.50 {
		t.Errorf("expected gemini standard output 2.50, got %f", pricing.Standard.Output)
	}
}

func TestGetModelPricing_UnknownModel(t *testing.T) {
	cfg := Load()

	pricing := cfg.GetModelPricing("unknown-model-xyz")

	if pricing.Standard.Input != 0 || pricing.Standard.Output != 0 {
		t.Errorf("expected zero pricing for unknown model, got input=%f output=%f",
			pricing.Standard.Input, pricing.Standard.Output)
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"EMBEDDING_FACE_DIM", "EMBEDDING_IMAGE_DIM", "EMBEDDING_URL", "CLUSTER_EPS",
		"CLUSTER_MIN_PTS", "DUPLICATE_THRESHOLD", "ANALYSIS_BATCH_SIZE", "LABELS_PROVIDER",
		"LOG_DEBUG", "WEB_ALLOWED_ORIGINS", "WEB_ALLOW_LOCALHOST", "WEB_CORS_MAX_AGE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Embedding.FaceDim != 128 {
		t.Errorf("expected default face dim 128, got %d", cfg.Embedding.FaceDim)
	}
	if cfg.Embedding.ImageDim != 1280 {
		t.Errorf("expected default image dim 1280, got %d", cfg.Embedding.ImageDim)
	}
	if cfg.Embedding.URL != "http://localhost:8000" {
		t.Errorf("expected default embedding URL, got %q", cfg.Embedding.URL)
	}
	if cfg.Clustering.Eps != 0.4 || cfg.Clustering.MinPts != 2 {
		t.Errorf("expected clustering defaults 0.4/2, got %v/%d", cfg.Clustering.Eps, cfg.Clustering.MinPts)
	}
	if cfg.Duplicates.Threshold != 0.85 {
		t.Errorf("expected duplicate threshold 0.85, got %v", cfg.Duplicates.Threshold)
	}
	if cfg.Analysis.BatchSize != 20 {
		t.Errorf("expected batch size 20, got %d", cfg.Analysis.BatchSize)
	}
	if cfg.Analysis.ComputeWorkers <= 0 {
		t.Errorf("expected positive compute workers, got %d", cfg.Analysis.ComputeWorkers)
	}
	if cfg.Labels.Provider != "none" {
		t.Errorf("expected labels provider none, got %q", cfg.Labels.Provider)
	}
	if cfg.Log.Debug {
		t.Error("expected debug logging off by default")
	}
	if len(cfg.Web.AllowedOrigins) != 0 || !cfg.Web.AllowLocalhost || cfg.Web.CORSMaxAge != 600 {
		t.Errorf("unexpected web defaults %+v", cfg.Web)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("EMBEDDING_FACE_DIM", "512")
	t.Setenv("CLUSTER_EPS", "0.25")
	t.Setenv("ANALYSIS_BATCH_SIZE", "50")
	t.Setenv("LABELS_PROVIDER", "OpenAI")
	t.Setenv("LOG_DEBUG", "true")
	t.Setenv("ANALYSIS_SCHEDULE", "*/5 * * * *")
	t.Setenv("PHOTOPRISM_URL", "http://photoprism:2342")
	t.Setenv("PHOTOPRISM_SYNC_SCHEDULE", "0 * * * *")
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://a.example.com ,,https://b.example.com")
	t.Setenv("WEB_ALLOW_LOCALHOST", "false")

	cfg := Load()

	if cfg.Embedding.FaceDim != 512 {
		t.Errorf("expected face dim 512, got %d", cfg.Embedding.FaceDim)
	}
	if cfg.Clustering.Eps != 0.25 {
		t.Errorf("expected eps 0.25, got %v", cfg.Clustering.Eps)
	}
	if cfg.Analysis.BatchSize != 50 {
		t.Errorf("expected batch size 50, got %d", cfg.Analysis.BatchSize)
	}
	if cfg.Labels.Provider != "openai" {
		t.Errorf("expected provider to be lowercased, got %q", cfg.Labels.Provider)
	}
	if !cfg.Log.Debug {
		t.Error("expected debug logging on")
	}
	if cfg.Analysis.Schedule != "*/5 * * * *" {
		t.Errorf("unexpected schedule %q", cfg.Analysis.Schedule)
	}
	if cfg.PhotoPrism.URL != "http://photoprism:2342" {
		t.Errorf("unexpected photoprism url %q", cfg.PhotoPrism.URL)
	}
	if cfg.PhotoPrism.SyncSchedule != "0 * * * *" {
		t.Errorf("unexpected sync schedule %q", cfg.PhotoPrism.SyncSchedule)
	}
	if len(cfg.Web.AllowedOrigins) != 2 || cfg.Web.AllowedOrigins[0] != "https://a.example.com" {
		t.Errorf("unexpected allowed origins %q", cfg.Web.AllowedOrigins)
	}
	if cfg.Web.AllowLocalhost {
		t.Error("expected localhost access disabled")
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"non-numeric", "invalid"},
		{"negative", "-5"},
		{"zero", "0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("EMBEDDING_FACE_DIM", tc.value)
			t.Setenv("CLUSTER_EPS", tc.value)

			cfg := Load()

			if cfg.Embedding.FaceDim != 128 {
				t.Errorf("expected default face dim 128 for %q, got %d", tc.value, cfg.Embedding.FaceDim)
			}
			if cfg.Clustering.Eps != 0.4 {
				t.Errorf("expected default eps 0.4 for %q, got %v", tc.value, cfg.Clustering.Eps)
			}
		})
	}
}
