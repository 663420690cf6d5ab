// Package expiration provides policies that decide when a cached entry is too old to be returned.
//
// A policy receives the age of an entry and the configured time-to-live. The lrucache
// package consults it on every read and on every sweep.
package expiration
