// Package model defines the core data structures shared by every stage of
// the test pipeline.
//
// This package contains the following main types:
//   - Subject: a domain, IP or URL together with its canonical IDNA form
//   - TestRequest: one unit of work handed to the tester stage
//   - TestResult: what a checker observed for one subject
//   - Outcome: the message flowing from the tester to the producer
//   - ContinueRecord, InactiveRecord, WhoisRecord: rows of the three datasets
//   - PreloadDescription: the resumable read-progress marker of an input file
//
// Models live in their own package so that the worker, dataset, tester,
// producer and preload packages can share them without import cycles.
package model
