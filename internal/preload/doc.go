// Package preload seeds the continue dataset from an input file.
//
// The read progress of each destination is kept in a preload.json file next
// to the status files. A SHA3-512 digest of the input decides whether the
// previous progress still applies: an unchanged file resumes at the stored
// line, a modified one is read again from the start. A file fully read once
// is skipped on the next run.
package preload
