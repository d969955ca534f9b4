// Package analysis drives resumable, cancellable batches over photos that
// have not been analyzed yet: labels, faces, an image embedding and
// fingerprints are computed per photo and persisted together.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/photo-grouper/internal/constants"
	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/facematch"
	"github.com/kozaktomas/photo-grouper/internal/fingerprint"
	"github.com/kozaktomas/photo-grouper/internal/logger"
	"github.com/kozaktomas/photo-grouper/internal/persons"
	"github.com/kozaktomas/photo-grouper/internal/workpool"
)

// State of the most recent run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateRetrying  State = "retrying"
	StateCancelled State = "cancelled"
)

// Progress stages
const (
	StageLabels    = "labels"
	StageFaces     = "faces"
	StageEmbedding = "embedding"
	StageSaved     = "saved"
)

var (
	ErrAlreadyRunning = errors.New("analysis is already running")
	ErrPhotoNotFound  = errors.New("photo not found")
)

// Progress describes an in-flight batch. Processed counts photos finished in
// the current batch, Total is the batch size.
type Progress struct {
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Stage     string `json:"stage"`
	PhotoUID  string `json:"photo_uid"`
}

// Result of one batch.
type Result struct {
	State          State `json:"state"`
	Processed      int   `json:"processed"`
	TotalRemaining int   `json:"total_remaining"`
	TotalAnalyzed  int   `json:"total_analyzed"`
	Continue       bool  `json:"continue"`
}

// Options tune the orchestrator. Zero dimensions disable the length checks.
type Options struct {
	FaceDim         int
	ImageDim        int
	MinFaceWidthRel float64
	FaceIoU         float64
	MinLabelConf    float64
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		FaceDim:         database.FaceEmbeddingDim,
		ImageDim:        database.ImageEmbeddingDim,
		MinFaceWidthRel: database.MinFaceWidthRel,
		FaceIoU:         constants.FaceDedupIoU,
		MinLabelConf:    constants.DefaultLabelConfidence,
	}
}

// Orchestrator runs analysis batches. Only one batch runs at a time.
type Orchestrator struct {
	manager  *persons.Manager
	loader   ImageLoader
	labels   LabelDetector
	faces    FaceDetector
	embedder ImageEmbedder
	io       *workpool.Pool
	opts     Options

	// OnProgress receives progress updates; it may be called concurrently
	// while the detectors of one photo run.
	OnProgress func(Progress)

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	progress sync.Mutex
}

// NewOrchestrator wires the orchestrator. Any detector may be nil, in which
// case that part of the analysis is skipped.
func NewOrchestrator(manager *persons.Manager, loader ImageLoader, labels LabelDetector, faces FaceDetector, embedder ImageEmbedder, io *workpool.Pool, opts Options) *Orchestrator {
	if io == nil {
		io = workpool.New("io", constants.DefaultIOWorkers)
	}
	return &Orchestrator{
		manager:  manager,
		loader:   loader,
		labels:   labels,
		faces:    faces,
		embedder: embedder,
		io:       io,
		opts:     opts,
		state:    StateIdle,
	}
}

// State returns the state of the current or last run.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Cancel asks the running batch to stop before the next photo. Photos already
// persisted stay; the photo in flight is not stored.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

func (o *Orchestrator) begin(ctx context.Context) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		return nil, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.state = StateRunning
	o.cancel = cancel
	return runCtx, nil
}

func (o *Orchestrator) finish(state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = state
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator) emit(p Progress) {
	if o.OnProgress == nil {
		return
	}
	o.progress.Lock()
	defer o.progress.Unlock()
	o.OnProgress(p)
}

// RunBatch analyzes up to batchSize (default 20) unanalyzed photos. The
// result reports Continue when more photos are waiting. A store failure ends
// the batch in StateRetrying with the error; photos stored before it stay.
func (o *Orchestrator) RunBatch(ctx context.Context, batchSize int) (Result, error) {
	if batchSize <= 0 {
		batchSize = constants.DefaultBatchSize
	}
	runCtx, err := o.begin(ctx)
	if err != nil {
		return Result{State: o.State()}, err
	}

	result, err := o.runBatch(runCtx, batchSize)
	o.finish(result.State)
	return result, err
}

func (o *Orchestrator) runBatch(ctx context.Context, batchSize int) (Result, error) {
	store := o.manager.Store()
	start := time.Now()

	var uids []string
	err := store.WithReadTx(ctx, func(tx database.Reader) error {
		var err error
		uids, err = tx.UnanalyzedPhotoUIDs(ctx, batchSize)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{State: StateCancelled}, nil
		}
		return Result{State: StateRetrying}, fmt.Errorf("list unanalyzed photos: %w", err)
	}

	result := Result{State: StateSucceeded}
	for i, uid := range uids {
		if ctx.Err() != nil {
			result.State = StateCancelled
			logger.Info("analysis cancelled", "processed", result.Processed, "batch", len(uids))
			return result, nil
		}

		err := o.analyze(ctx, uid, false, func(stage string) {
			o.emit(Progress{Processed: i, Total: len(uids), Stage: stage, PhotoUID: uid})
		})
		switch {
		case err == nil:
			result.Processed++
			o.emit(Progress{Processed: i + 1, Total: len(uids), Stage: StageSaved, PhotoUID: uid})
		case errors.Is(err, ErrPhotoNotFound):
			logger.Debug("photo vanished before analysis", "photo", uid)
		case ctx.Err() != nil:
			result.State = StateCancelled
			logger.Info("analysis cancelled", "processed", result.Processed, "batch", len(uids))
			return result, nil
		default:
			result.State = StateRetrying
			logger.Error("analysis batch failed", "photo", uid, "error", err)
			return result, err
		}
	}

	err = store.WithReadTx(ctx, func(tx database.Reader) error {
		var err error
		if result.TotalRemaining, err = tx.CountUnanalyzed(ctx); err != nil {
			return err
		}
		result.TotalAnalyzed, err = tx.CountAnalyses(ctx)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			result.State = StateCancelled
			return result, nil
		}
		result.State = StateRetrying
		return result, fmt.Errorf("count analyses: %w", err)
	}
	result.Continue = result.TotalRemaining > 0

	logger.Info("analysis batch finished",
		"processed", result.Processed, "remaining", result.TotalRemaining,
		"analyzed", result.TotalAnalyzed, "duration", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// RunUntilDone runs batches while they report Continue. It stops early on
// any state other than StateSucceeded and when a batch makes no progress.
func (o *Orchestrator) RunUntilDone(ctx context.Context, batchSize int, onBatch func(Result)) (Result, error) {
	var total Result
	for {
		res, err := o.RunBatch(ctx, batchSize)
		total.Processed += res.Processed
		total.State = res.State
		total.TotalRemaining = res.TotalRemaining
		total.TotalAnalyzed = res.TotalAnalyzed
		total.Continue = res.Continue
		if onBatch != nil {
			onBatch(res)
		}
		if err != nil || res.State != StateSucceeded || !res.Continue {
			return total, err
		}
		if res.Processed == 0 {
			logger.Warn("analysis batch made no progress, stopping", "remaining", res.TotalRemaining)
			return total, nil
		}
	}
}

// Reanalyze analyzes one photo again and replaces its stored analysis and
// faces. Persons that owned replaced faces are re-derived.
func (o *Orchestrator) Reanalyze(ctx context.Context, photoUID string) (*database.PhotoAnalysis, error) {
	if err := o.analyze(ctx, photoUID, true, nil); err != nil {
		return nil, err
	}
	var a *database.PhotoAnalysis
	err := o.manager.Store().WithReadTx(ctx, func(tx database.Reader) error {
		var err error
		a, err = tx.GetAnalysis(ctx, photoUID)
		return err
	})
	return a, err
}

// analyze runs the detectors for one photo and persists the outcome.
// Detector failures are logged and leave their part empty. Errors returned
// are store errors or cancellation.
func (o *Orchestrator) analyze(ctx context.Context, uid string, force bool, stage func(string)) error {
	if stage == nil {
		stage = func(string) {}
	}
	store := o.manager.Store()

	var photo *database.Photo
	err := store.WithReadTx(ctx, func(tx database.Reader) error {
		var err error
		photo, err = tx.GetPhoto(ctx, uid)
		return err
	})
	if err != nil {
		return fmt.Errorf("get photo %s: %w", uid, err)
	}
	if photo == nil {
		return fmt.Errorf("%s: %w", uid, ErrPhotoNotFound)
	}

	analysis := &database.PhotoAnalysis{PhotoUID: uid}
	var faces []database.Face

	data, err := o.loader.LoadImage(ctx, photo)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("cannot load photo, storing empty analysis", "photo", uid, "error", err)
	} else {
		width, height := photo.Width, photo.Height
		if fp, err := fingerprint.Compute(data); err != nil {
			logger.Debug("fingerprint failed", "photo", uid, "error", err)
		} else {
			analysis.PerceptualHash = fp.PHash
			analysis.DifferenceHash = fp.DHash
			analysis.QualityScore = fp.Quality
			analysis.SharpnessScore = fp.Sharpness
			width, height = fp.Width, fp.Height
		}

		faces = o.detect(ctx, photo, data, width, height, analysis, stage)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	saved, err := o.manager.StoreAnalysis(ctx, analysis, faces)
	if err != nil {
		return err
	}
	logger.Debug("photo analyzed", "photo", uid, "labels", len(analysis.Labels),
		"faces", len(saved), "embedding", analysis.Embedding != nil, "reanalyzed", force)
	return nil
}

// detect runs the three detectors concurrently on the I/O pool and fills
// analysis; it returns the faces to store.
func (o *Orchestrator) detect(ctx context.Context, photo *database.Photo, data []byte, width, height int, analysis *database.PhotoAnalysis, stage func(string)) []database.Face {
	var faces []database.Face
	g := o.io.Group(ctx)

	if o.labels != nil {
		g.Go(func(ctx context.Context) error {
			res, err := o.labels.DetectLabels(ctx, data)
			if err != nil {
				logger.Warn("label detection failed", "photo", photo.UID, "error", err)
				return nil
			}
			for _, l := range res.Labels {
				if l.Confidence >= o.opts.MinLabelConf {
					analysis.Labels = append(analysis.Labels, database.Label{Name: l.Name, Confidence: l.Confidence})
				}
			}
			analysis.PrimaryCategory = res.PrimaryCategory
			analysis.PrimaryConfidence = res.PrimaryConfidence
			stage(StageLabels)
			return nil
		})
	}

	if o.faces != nil {
		g.Go(func(ctx context.Context) error {
			detected, err := o.faces.DetectFaces(ctx, data)
			if err != nil {
				logger.Warn("face detection failed", "photo", photo.UID, "error", err)
				return nil
			}
			faces = o.toFaces(photo.UID, detected, width, height)
			stage(StageFaces)
			return nil
		})
	}

	if o.embedder != nil {
		g.Go(func(ctx context.Context) error {
			emb, err := o.embedder.EmbedImage(ctx, data)
			if err != nil {
				logger.Warn("image embedding failed, storing analysis without it", "photo", photo.UID, "error", err)
				return nil
			}
			if o.opts.ImageDim > 0 && len(emb) != o.opts.ImageDim {
				logger.Warn("discarding image embedding with unexpected dimension",
					"photo", photo.UID, "got", len(emb), "want", o.opts.ImageDim)
				return nil
			}
			analysis.Embedding = emb
			stage(StageEmbedding)
			return nil
		})
	}

	// Tasks only fail when ctx is cancelled; the caller checks ctx.
	_ = g.Wait()
	return faces
}

// toFaces converts pixel detections to relative faces, drops tiny and
// overlapping detections and discards embeddings of the wrong length.
func (o *Orchestrator) toFaces(photoUID string, detected []DetectedFace, width, height int) []database.Face {
	faces := make([]database.Face, 0, len(detected))
	for _, d := range detected {
		bbox, ok := facematch.PixelToRelative(d.BBox, width, height)
		if !ok {
			logger.Debug("skipping face with invalid bbox", "photo", photoUID, "bbox", d.BBox)
			continue
		}
		emb := d.Embedding
		if len(emb) == 0 || (o.opts.FaceDim > 0 && len(emb) != o.opts.FaceDim) {
			if len(emb) > 0 {
				logger.Warn("discarding face embedding with unexpected dimension",
					"photo", photoUID, "got", len(emb), "want", o.opts.FaceDim)
			}
			emb = nil
		}
		faces = append(faces, database.Face{
			PhotoUID:   photoUID,
			BBox:       bbox,
			Embedding:  emb,
			Confidence: d.Confidence,
		})
	}
	return facematch.FilterFaces(faces, o.opts.MinFaceWidthRel, o.opts.FaceIoU)
}
