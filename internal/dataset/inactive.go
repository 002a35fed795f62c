package dataset

import (
	"context"
	"iter"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
)

// InactiveDataset remembers subjects whose last status was down or invalid.
type InactiveDataset struct {
	store Store[model.InactiveRecord]
	now   func() time.Time
}

// NewInactiveDataset wraps a store.
func NewInactiveDataset(store Store[model.InactiveRecord]) *InactiveDataset {
	return &InactiveDataset{store: store, now: time.Now}
}

// Store returns the underlying store.
func (d *InactiveDataset) Store() Store[model.InactiveRecord] {
	return d.store
}

// Authorized reports whether the dataset is enabled.
func (d *InactiveDataset) Authorized() bool {
	return d.store.Authorized()
}

func inactiveKey(idnaSubject string, checkerType model.CheckerType, source string) model.InactiveRecord {
	return model.InactiveRecord{IDNASubject: idnaSubject, CheckerType: checkerType, Source: source, Status: model.StatusDown}
}

// Get returns the record of a subject for (checker type, source).
func (d *InactiveDataset) Get(ctx context.Context, idnaSubject string, checkerType model.CheckerType, source string) (*model.InactiveRecord, error) {
	rec, ok, err := d.store.Get(ctx, inactiveKey(idnaSubject, checkerType, source))
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

// Contains reports whether the subject is known inactive for (checker type, source).
func (d *InactiveDataset) Contains(ctx context.Context, idnaSubject string, checkerType model.CheckerType, source string) (bool, error) {
	return d.store.Exists(ctx, inactiveKey(idnaSubject, checkerType, source))
}

// Record stores the request as inactive with the given status, tested now.
func (d *InactiveDataset) Record(ctx context.Context, req *model.TestRequest, status model.Status) error {
	return d.store.Update(ctx, model.InactiveRecord{
		Subject:     req.Subject.Raw,
		IDNASubject: req.Subject.IDNA,
		Source:      req.Source,
		CheckerType: req.CheckerType,
		TestedAt:    d.now().UTC(),
		Status:      status,
	}, false)
}

// Refresh moves the tested_at of a still inactive subject to now.
func (d *InactiveDataset) Refresh(ctx context.Context, req *model.TestRequest, status model.Status) error {
	return d.Record(ctx, req, status)
}

// Delete forgets a subject for the request's (checker type, source).
func (d *InactiveDataset) Delete(ctx context.Context, req *model.TestRequest) error {
	return d.store.Remove(ctx, inactiveKey(req.Subject.IDNA, req.CheckerType, req.Source))
}

// ToRetest iterates over the records of (source, checker type) last tested
// before the given instant.
func (d *InactiveDataset) ToRetest(ctx context.Context, source string, checkerType model.CheckerType, before time.Time) iter.Seq2[model.InactiveRecord, error] {
	return func(yield func(model.InactiveRecord, error) bool) {
		f := Filter{colSource: source, colCheckerType: string(checkerType)}
		for rec, err := range d.store.Find(ctx, f) {
			if err != nil {
				yield(rec, err)
				return
			}
			if !rec.TestedAt.Before(before) {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
