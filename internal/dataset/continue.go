package dataset

import (
	"context"
	"iter"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
)

// ContinueDataset tracks which subjects a session has already tested.
type ContinueDataset struct {
	store Store[model.ContinueRecord]
	now   func() time.Time
}

// NewContinueDataset wraps a store.
func NewContinueDataset(store Store[model.ContinueRecord]) *ContinueDataset {
	return &ContinueDataset{store: store, now: time.Now}
}

// Store returns the underlying store.
func (d *ContinueDataset) Store() Store[model.ContinueRecord] {
	return d.store
}

// Authorized reports whether the dataset is enabled.
func (d *ContinueDataset) Authorized() bool {
	return d.store.Authorized()
}

// IsTested reports whether the session already tested the subject.
// Rows seeded by the preloader do not count until they are marked.
func (d *ContinueDataset) IsTested(ctx context.Context, sessionID, idnaSubject string) (bool, error) {
	rec, ok, err := d.store.Get(ctx, model.ContinueRecord{SessionID: sessionID, IDNASubject: idnaSubject})
	if err != nil || !ok {
		return false, err
	}
	return !rec.IsPending(), nil
}

// MarkTested records that the subject was tested now.
func (d *ContinueDataset) MarkTested(ctx context.Context, req *model.TestRequest) error {
	return d.store.Update(ctx, model.ContinueRecord{
		SessionID:   req.SessionID,
		IDNASubject: req.Subject.IDNA,
		CheckerType: req.CheckerType,
		Source:      req.Source,
		TestedAt:    d.now().UTC(),
		Subject:     req.Subject.Raw,
	}, false)
}

// Seed records a subject to test, unless the session already knows it.
func (d *ContinueDataset) Seed(ctx context.Context, sessionID string, subject model.Subject, checkerType model.CheckerType, source string) error {
	return d.store.Update(ctx, model.ContinueRecord{
		SessionID:   sessionID,
		IDNASubject: subject.IDNA,
		CheckerType: checkerType,
		Source:      source,
		TestedAt:    model.PendingTime,
		Subject:     subject.Raw,
	}, true)
}

// Pending iterates over the seeded, untested rows of a session.
func (d *ContinueDataset) Pending(ctx context.Context, sessionID string) iter.Seq2[model.ContinueRecord, error] {
	return func(yield func(model.ContinueRecord, error) bool) {
		for rec, err := range d.store.Find(ctx, Filter{colSessionID: sessionID}) {
			if err != nil {
				yield(rec, err)
				return
			}
			if !rec.IsPending() {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// CleanupSource drops every row read from source.
func (d *ContinueDataset) CleanupSource(ctx context.Context, source string) (int, error) {
	return d.store.RemoveWhere(ctx, func(r model.ContinueRecord) bool {
		return r.Source == source
	})
}

// CleanupSession drops every row of a session.
func (d *ContinueDataset) CleanupSession(ctx context.Context, sessionID string) (int, error) {
	return d.store.RemoveWhere(ctx, func(r model.ContinueRecord) bool {
		return r.SessionID == sessionID
	})
}
