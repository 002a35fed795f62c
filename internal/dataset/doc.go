// Package dataset persists the three datasets shared by the pipeline
// stages: continue (what this session already tested), inactive (what was
// down or invalid last time) and whois (cached expiration dates).
//
// Every dataset is a Store[R] over one record type. Two backend families
// implement Store: CSVStore keeps a header-less CSV file per dataset, and
// SQLStore keeps one table per dataset in SQLite, MariaDB/MySQL or
// PostgreSQL. The backend is selected once at startup (see Open).
//
// A store built with authorized=false accepts every call and does nothing,
// so callers never branch on configuration.
//
// Records are compared on their key columns only:
//
//	continue: idna_subject, session_id
//	inactive: idna_subject, checker_type, source
//	whois:    subject, idna_subject
package dataset
