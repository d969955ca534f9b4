package handlers

import (
	"net/http"

	"github.com/kozaktomas/photo-grouper/internal/config"
	"github.com/kozaktomas/photo-grouper/internal/database"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Providers          []ProviderInfo `json:"providers"`
	LabelProvider      string         `json:"label_provider"`
	FaceIndexLoaded    bool           `json:"face_index_loaded"`
	ClusterEps         float64        `json:"cluster_eps"`
	ClusterMinPts      int            `json:"cluster_min_pts"`
	DuplicateThreshold float64        `json:"duplicate_threshold"`
	AnalysisBatchSize  int            `json:"analysis_batch_size"`
	AnalysisSchedule   string         `json:"analysis_schedule,omitempty"`
}

// ProviderInfo represents information about a label provider
type ProviderInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Get returns the effective configuration without secrets
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	providers := []ProviderInfo{
		{
			Name:      "openai",
			Available: h.config.OpenAI.Token != "",
		},
		{
			Name:      "gemini",
			Available: h.config.Gemini.APIKey != "",
		},
	}

	idx := database.GetFaceIndex()
	response := ConfigResponse{
		Providers:          providers,
		LabelProvider:      h.config.Labels.Provider,
		FaceIndexLoaded:    idx != nil && !idx.IsEmpty(),
		ClusterEps:         h.config.Clustering.Eps,
		ClusterMinPts:      h.config.Clustering.MinPts,
		DuplicateThreshold: h.config.Duplicates.Threshold,
		AnalysisBatchSize:  h.config.Analysis.BatchSize,
		AnalysisSchedule:   h.config.Analysis.Schedule,
	}

	respondJSON(w, http.StatusOK, response)
}
