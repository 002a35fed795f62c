package dataset

import (
	"context"
	"errors"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
)

// WhoisDataset caches WHOIS expiration dates.
type WhoisDataset struct {
	store Store[model.WhoisRecord]
}

// NewWhoisDataset wraps a store.
func NewWhoisDataset(store Store[model.WhoisRecord]) *WhoisDataset {
	return &WhoisDataset{store: store}
}

// Store returns the underlying store.
func (d *WhoisDataset) Store() Store[model.WhoisRecord] {
	return d.store
}

// Authorized reports whether the dataset is enabled.
func (d *WhoisDataset) Authorized() bool {
	return d.store.Authorized()
}

// GetValid returns the unexpired record of subject, matched on either the
// subject or its IDNA form. Expired records are never returned.
func (d *WhoisDataset) GetValid(ctx context.Context, subject string, now time.Time) (*model.WhoisRecord, error) {
	for _, col := range []string{colSubject, colIDNASubject} {
		for rec, err := range d.store.Find(ctx, Filter{col: subject}) {
			if err != nil {
				return nil, err
			}
			if rec.IsExpired(now) {
				continue
			}
			return &rec, nil
		}
	}
	return nil, nil
}

// Cleanup deletes the records expired at now.
func (d *WhoisDataset) Cleanup(ctx context.Context, now time.Time) (int, error) {
	return d.store.RemoveWhere(ctx, func(r model.WhoisRecord) bool {
		return r.IsExpired(now)
	})
}

// Upsert stores a record. A record whose epoch overflows is clamped to
// model.MaxExpirationDate and written again, once.
func (d *WhoisDataset) Upsert(ctx context.Context, rec model.WhoisRecord) error {
	err := d.store.Update(ctx, rec, false)
	if !errors.Is(err, ErrEpochOverflow) {
		return err
	}
	rec.SetExpiration(model.MaxExpirationDate)
	return d.store.Update(ctx, rec, false)
}

// Save stores the expiration date carried by a result. Results without a
// date are ignored. URLs are cached under their host.
func (d *WhoisDataset) Save(ctx context.Context, result *model.TestResult) error {
	if !result.HasExpirationDate() {
		return nil
	}

	subject, idnaSubject := result.Subject, result.IDNASubject
	if s, err := model.NewSubject(result.Subject); err == nil && s.Kind == model.KindURL {
		subject, idnaSubject = s.Host(), s.Host()
	}

	rec := model.NewWhoisRecord(subject, idnaSubject, *result.ExpirationDate, result.Registrar)
	return d.Upsert(ctx, rec)
}
