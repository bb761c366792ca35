package centre

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PayloadSource supplies the raw dataset payload a rebuild normalizes.
type PayloadSource interface {
	Load(ctx context.Context) (json.RawMessage, error)
}

// PayloadSourceFunc adapts a function to PayloadSource.
type PayloadSourceFunc func(ctx context.Context) (json.RawMessage, error)

// Load implements PayloadSource.
func (f PayloadSourceFunc) Load(ctx context.Context) (json.RawMessage, error) {
	return f(ctx)
}

// Report summarizes one rebuild.
type Report struct {
	DatasetID string               `json:"dataset_id"`
	Total     int                  `json:"total"`
	Accepted  int                  `json:"accepted"`
	Inserted  int64                `json:"inserted"`
	Rejected  int                  `json:"rejected"`
	ByReason  map[RejectReason]int `json:"by_reason"`
	DryRun    bool                 `json:"dry_run"`
}

// Rebuilder normalizes a raw payload and replaces the centre collection.
// It is an offline maintenance job; concurrent runs serialize on the
// store's replace lock.
type Rebuilder struct {
	source PayloadSource
	store  Store
}

// NewRebuilder creates a Rebuilder.
func NewRebuilder(source PayloadSource, store Store) *Rebuilder {
	return &Rebuilder{source: source, store: store}
}

// Run loads, normalizes, and (unless dryRun) persists the dataset.
func (r *Rebuilder) Run(ctx context.Context, dryRun bool) (*Report, error) {
	log := zap.L().With(zap.String("component", "centre.rebuild"))

	payload, err := r.source.Load(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "centre: rebuild: load payload")
	}

	batch, err := Normalize(payload)
	if err != nil {
		return nil, eris.Wrap(err, "centre: rebuild: normalize")
	}

	for _, rej := range batch.Rejections {
		log.Debug("record rejected",
			zap.Int("index", rej.Index),
			zap.String("loc_id", rej.LocID),
			zap.String("reason", string(rej.Reason)),
			zap.String("detail", rej.Detail),
		)
	}

	report := &Report{
		DatasetID: batch.DatasetID,
		Total:     batch.Total,
		Accepted:  len(batch.Centres),
		Rejected:  len(batch.Rejections),
		ByReason:  batch.CountByReason(),
		DryRun:    dryRun,
	}

	if !dryRun {
		n, err := r.store.Replace(ctx, batch.Centres)
		if err != nil {
			return nil, eris.Wrap(err, "centre: rebuild: replace")
		}
		report.Inserted = n
	}

	log.Info("centres rebuilt",
		zap.String("dataset_id", report.DatasetID),
		zap.Int("total", report.Total),
		zap.Int("accepted", report.Accepted),
		zap.Int64("inserted", report.Inserted),
		zap.Int("rejected", report.Rejected),
		zap.Bool("dry_run", dryRun),
	)
	return report, nil
}
