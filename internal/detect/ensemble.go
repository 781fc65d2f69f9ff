package detect

import (
	"fmt"
	"log/slog"

	"github.com/openathletics/stridewatch/internal/domain"
	"github.com/openathletics/stridewatch/internal/features"
)

// Ensemble runs several detectors over a batch and combines their votes.
// A record is flagged only when enough succeeding detectors agree, and a
// detector failure never takes down the batch.
type Ensemble struct {
	detectors []Detector
	minVotes  int
	logger    *slog.Logger
}

// EnsembleResult holds per-detector and combined flags for a batch.
type EnsembleResult struct {
	// Flags is the combined verdict per row.
	Flags []bool

	// ByDetector maps detector name to its flags, successes only.
	ByDetector map[string][]bool

	// Failed maps detector name to its failure, when any.
	Failed map[string]error
}

// Succeeded returns the number of detectors that produced flags.
func (r *EnsembleResult) Succeeded() int { return len(r.ByDetector) }

// NewEnsemble builds the standard three-detector ensemble for a batch of n
// rows using the given detection settings.
func NewEnsemble(cfg domain.DetectionConfig, n int) *Ensemble {
	contamination := EffectiveContamination(n, cfg.Contamination, cfg.SmallBatchSize)
	return &Ensemble{
		detectors: []Detector{
			NewIsolationForest(cfg.Trees, contamination, cfg.Seed),
			NewLOF(cfg.LOFNeighbors, contamination),
			NewKMeansDistance(cfg.KMeansMaxClusters, cfg.Seed),
		},
		minVotes: cfg.MinVotes,
		logger:   slog.With("component", "ensemble"),
	}
}

// NewEnsembleWith builds an ensemble over explicit detectors, used by tests.
func NewEnsembleWith(minVotes int, detectors ...Detector) *Ensemble {
	return &Ensemble{
		detectors: detectors,
		minVotes:  minVotes,
		logger:    slog.With("component", "ensemble"),
	}
}

// Run executes all detectors on m. Individual detector failures (errors or
// panics) are recorded and excluded from voting. When fewer detectors
// succeed than votes required, no row can be flagged.
func (e *Ensemble) Run(m *features.Matrix) *EnsembleResult {
	n := m.Rows()
	result := &EnsembleResult{
		Flags:      make([]bool, n),
		ByDetector: make(map[string][]bool),
		Failed:     make(map[string]error),
	}

	for _, det := range e.detectors {
		flags, err := e.runOne(det, m)
		if err != nil {
			e.logger.Warn("detector failed, excluding from vote",
				"detector", det.Name(),
				"error", err,
			)
			result.Failed[det.Name()] = err
			continue
		}
		result.ByDetector[det.Name()] = flags
	}

	if len(result.ByDetector) < e.minVotes {
		return result
	}

	for i := 0; i < n; i++ {
		votes := 0
		for _, flags := range result.ByDetector {
			if flags[i] {
				votes++
			}
		}
		result.Flags[i] = votes >= e.minVotes
	}
	return result
}

func (e *Ensemble) runOne(det Detector, m *features.Matrix) (flags []bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	flags, err = det.FitPredict(m)
	if err == nil && len(flags) != m.Rows() {
		return nil, fmt.Errorf("detector returned %d flags for %d rows", len(flags), m.Rows())
	}
	return flags, err
}
