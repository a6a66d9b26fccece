package pipeline

import (
	"go.uber.org/zap"

	"github.com/jonathan/fee-agent/internal/artifacts"
	"github.com/jonathan/fee-agent/internal/response"
	"github.com/jonathan/fee-agent/internal/schemas"
	embedded "github.com/jonathan/fee-agent/schemas"
)

// derivedArtifacts are rewritten by every replay; leftovers from an earlier evaluation are
// removed first.
var derivedArtifacts = []string{artifacts.SummaryCSV, artifacts.DetailedCSV, artifacts.FailedParseHTML}

// ReplayResult is the offline re-evaluation of a saved response.
type ReplayResult struct {
	Dir     string
	Verdict response.Verdict
	Fees    *response.Fees
	// Recorded is the outcome.json the run wrote, nil when absent or invalid.
	Recorded *Outcome
}

// Replay classifies and extracts the response.html saved in dir without touching the network.
// Accepted responses have their CSVs rewritten; an empty extraction rewrites failed_parse.html.
func Replay(dir string, logger *zap.Logger) (*ReplayResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := artifacts.OpenExisting(dir)
	if err != nil {
		return nil, err
	}
	body, err := store.Load(artifacts.ResponseHTML)
	if err != nil {
		return nil, err
	}

	log := logger.With(zap.String("dir", store.Dir()))
	result := &ReplayResult{
		Dir:      store.Dir(),
		Verdict:  response.Classify(string(body)),
		Recorded: loadRecorded(store, log),
	}
	log.Info("response classified", zap.String("verdict", string(result.Verdict)))

	for _, name := range derivedArtifacts {
		if err := store.Remove(name); err != nil {
			return nil, err
		}
	}
	if result.Verdict.Rejected() {
		return result, nil
	}

	fees, err := response.ExtractFees(string(body), log)
	if err != nil {
		return nil, err
	}
	result.Fees = fees
	if fees.Empty() {
		return result, store.Persist(artifacts.FailedParseHTML, body)
	}
	if len(fees.Summary) > 0 {
		if err := store.PersistCSV(artifacts.SummaryCSV, response.SummaryHeader, fees.SummaryRows()); err != nil {
			return nil, err
		}
	}
	if len(fees.Detail) > 0 {
		if err := store.PersistCSV(artifacts.DetailedCSV, response.DetailHeader, fees.DetailRows()); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func loadRecorded(store *artifacts.Store, log *zap.Logger) *Outcome {
	if !store.Has(artifacts.OutcomeJSON) {
		return nil
	}
	if err := schemas.ValidateFile(embedded.Outcome, store.Path(artifacts.OutcomeJSON)); err != nil {
		log.Warn("recorded outcome is not valid, ignoring it", zap.Error(err))
		return nil
	}
	var recorded Outcome
	if err := store.LoadJSON(artifacts.OutcomeJSON, &recorded); err != nil {
		log.Warn("failed to read recorded outcome", zap.Error(err))
		return nil
	}
	return &recorded
}
