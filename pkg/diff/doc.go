// Package diff computes the minimal key-level changes between two state
// snapshots.
//
// Diff is a pure function of its inputs. The delta it returns is ordered
// lexicographically by key so that the same pair of snapshots always yields
// the same operations in the same order, and Diff(m, m) is always empty.
package diff
