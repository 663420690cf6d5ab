// Package sweeper runs SweepExpired on a fixed interval in the background.
//
// Reads remove expired entries lazily. When reads are sparse, expired entries and the
// handles they hold would otherwise stay in memory; the sweeper bounds that.
package sweeper
