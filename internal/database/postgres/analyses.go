package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kozaktomas/photo-grouper/internal/database"
)

const analysisColumns = `photo_uid, embedding, labels, primary_category, primary_confidence, face_count,
	perceptual_hash, difference_hash, quality_score, sharpness_score, analyzed_at`

func scanAnalysisRow(scanner interface{ Scan(...any) error }, dim int) (database.PhotoAnalysis, error) {
	var a database.PhotoAnalysis
	var emb, labels []byte

	if err := scanner.Scan(
		&a.PhotoUID,
		&emb,
		&labels,
		&a.PrimaryCategory,
		&a.PrimaryConfidence,
		&a.FaceCount,
		&a.PerceptualHash,
		&a.DifferenceHash,
		&a.QualityScore,
		&a.SharpnessScore,
		&a.AnalyzedAt,
	); err != nil {
		return a, fmt.Errorf("scan analysis: %w", err)
	}

	a.Embedding = decodeEmbedding("photo", a.PhotoUID, emb, dim)
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &a.Labels); err != nil {
			return a, fmt.Errorf("parse labels of %s: %w", a.PhotoUID, err)
		}
	}
	return a, nil
}

// GetAnalysis retrieves the analysis of a photo, nil if it was never analyzed.
func (r *repo) GetAnalysis(ctx context.Context, photoUID string) (*database.PhotoAnalysis, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM photo_analyses WHERE photo_uid = $1`, photoUID)
	a, err := scanAnalysisRow(row, r.dims.Image)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// GetAnalysesWithEmbedding returns every analysis carrying a decodable embedding.
func (r *repo) GetAnalysesWithEmbedding(ctx context.Context) ([]database.PhotoAnalysis, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM photo_analyses WHERE embedding IS NOT NULL ORDER BY photo_uid`)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var out []database.PhotoAnalysis
	for rows.Next() {
		a, err := scanAnalysisRow(rows, r.dims.Image)
		if err != nil {
			return nil, err
		}
		if a.Embedding == nil {
			continue
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return out, nil
}

// CountAnalyses returns the number of analyzed photos.
func (r *repo) CountAnalyses(ctx context.Context) (int, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM photo_analyses").Scan(&count); err != nil {
		return 0, fmt.Errorf("count analyses: %w", err)
	}
	return count, nil
}

// SaveAnalysis inserts or replaces the analysis of a photo.
func (r *repo) SaveAnalysis(ctx context.Context, a *database.PhotoAnalysis) error {
	labels := a.Labels
	if labels == nil {
		labels = []database.Label{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = time.Now()
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO photo_analyses (
			photo_uid, embedding, labels, primary_category, primary_confidence, face_count,
			perceptual_hash, difference_hash, quality_score, sharpness_score, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (photo_uid) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			labels = EXCLUDED.labels,
			primary_category = EXCLUDED.primary_category,
			primary_confidence = EXCLUDED.primary_confidence,
			face_count = EXCLUDED.face_count,
			perceptual_hash = EXCLUDED.perceptual_hash,
			difference_hash = EXCLUDED.difference_hash,
			quality_score = EXCLUDED.quality_score,
			sharpness_score = EXCLUDED.sharpness_score,
			analyzed_at = EXCLUDED.analyzed_at
	`,
		a.PhotoUID,
		encodeEmbedding(a.Embedding),
		labelsJSON,
		a.PrimaryCategory,
		a.PrimaryConfidence,
		a.FaceCount,
		a.PerceptualHash,
		a.DifferenceHash,
		a.QualityScore,
		a.SharpnessScore,
		a.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("save analysis of %s: %w", a.PhotoUID, err)
	}
	return nil
}
