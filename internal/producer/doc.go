// Package producer implements the result stage of a test run.
//
// The stage is a single consumer: every dataset write, status file line,
// counter increment and stdout line of a run happens on its goroutine, in
// a fixed order. The order is expressed as a Pipeline of Steps:
//
//  1. whois: cache the expiration date of the result
//  2. inactive: record, refresh or forget the subject
//  3. continue: mark the subject tested for the session
//  4. results: append to the SQL results table
//  5. files, counter, printer: display, skipped for a subject that was
//     retested because it was inactive and still is
//
// Outcomes are then forwarded to the downstream queues.
package producer
