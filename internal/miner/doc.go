// Package miner discovers subjects related to the ones found up.
//
// The miner is the stage after the producer. For each positive list result
// it fetches the subject over HTTP, records the redirect chain and the links
// of the page, and keeps those under the same registrable domain. The
// related subjects are seeded as pending rows of the session in the continue
// dataset, to be tested in a second round. Mined subjects are not mined
// again.
package miner
