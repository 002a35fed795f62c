package dataset

import (
	"fmt"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
)

// Column names shared by the schemas.
const (
	colIDNASubject    = "idna_subject"
	colSessionID      = "session_id"
	colCheckerType    = "checker_type"
	colSource         = "source"
	colTestedAt       = "tested_at"
	colSubject        = "subject"
	colStatus         = "status"
	colExpirationDate = "expiration_date"
	colEpoch          = "epoch"
	colRegistrar      = "registrar"
)

// ContinueSchema lays out ContinueRecord.
var ContinueSchema = Schema[model.ContinueRecord]{
	Name:    "continue",
	File:    "continue.csv",
	Table:   "funceble_continue",
	Columns: []string{colIDNASubject, colSessionID, colCheckerType, colSource, colTestedAt, colSubject},
	Key:     []string{colIDNASubject, colSessionID},
	Encode: func(r model.ContinueRecord) ([]string, error) {
		return []string{r.IDNASubject, r.SessionID, string(r.CheckerType), r.Source, formatTime(r.TestedAt), r.Subject}, nil
	},
	Decode: func(row []string) (model.ContinueRecord, error) {
		testedAt, err := parseTime(row[4])
		if err != nil {
			return model.ContinueRecord{}, err
		}
		return model.ContinueRecord{
			IDNASubject: row[0],
			SessionID:   row[1],
			CheckerType: model.CheckerType(row[2]),
			Source:      row[3],
			TestedAt:    testedAt,
			Subject:     row[5],
		}, nil
	},
}

// InactiveSchema lays out InactiveRecord.
var InactiveSchema = Schema[model.InactiveRecord]{
	Name:    "inactive",
	File:    "inactive_db.csv",
	Table:   "funceble_inactive",
	Columns: []string{colIDNASubject, colCheckerType, colSource, colSubject, colStatus, colTestedAt},
	Key:     []string{colIDNASubject, colCheckerType, colSource},
	Encode: func(r model.InactiveRecord) ([]string, error) {
		return []string{r.IDNASubject, string(r.CheckerType), r.Source, r.Subject, string(r.Status), formatTime(r.TestedAt)}, nil
	},
	Decode: func(row []string) (model.InactiveRecord, error) {
		status, err := model.ParseStatus(row[4])
		if err != nil {
			return model.InactiveRecord{}, err
		}
		testedAt, err := parseTime(row[5])
		if err != nil {
			return model.InactiveRecord{}, err
		}
		return model.InactiveRecord{
			IDNASubject: row[0],
			CheckerType: model.CheckerType(row[1]),
			Source:      row[2],
			Subject:     row[3],
			Status:      status,
			TestedAt:    testedAt,
		}, nil
	},
}

// WhoisSchema lays out WhoisRecord. Records whose epoch lies beyond
// model.MaxExpirationDate are refused with ErrEpochOverflow.
var WhoisSchema = Schema[model.WhoisRecord]{
	Name:    "whois",
	File:    "whois_db.csv",
	Table:   "funceble_whois",
	Columns: []string{colSubject, colIDNASubject, colExpirationDate, colEpoch, colRegistrar},
	Key:     []string{colSubject, colIDNASubject},
	Encode: func(r model.WhoisRecord) ([]string, error) {
		if r.Overflows() {
			return nil, fmt.Errorf("%w: %s", ErrEpochOverflow, r.Epoch)
		}
		return []string{r.Subject, r.IDNASubject, r.ExpirationDate, r.Epoch, r.Registrar}, nil
	},
	Decode: func(row []string) (model.WhoisRecord, error) {
		return model.WhoisRecord{
			Subject:        row[0],
			IDNASubject:    row[1],
			ExpirationDate: row[2],
			Epoch:          row[3],
			Registrar:      row[4],
		}, nil
	},
}

// formatTime renders timestamps as stored by every backend.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats are accepted when reading tested_at back. Rows written by
// hand or by older tools may lack the nanoseconds or the zone.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
