// Package publish uploads workspace packages to a registry in dependency
// order and waits for each upload to become visible before publishing its
// dependents.
//
// The [Scheduler] walks the publish graph layer by layer, one package at
// a time, and stops at the first failure. A [ledger.Ledger] remembers
// what each run did so that a rerun after a crash or a visibility timeout
// skips confirmed packages and resumes waiting on uploaded ones instead of
// uploading them again.
//
// Visibility polling is the only step with a deadline. It is driven by a
// [Waiter] that backs off exponentially between polls; all sleeping goes
// through a [Clock] so tests run instantly.
//
// [ledger.Ledger]: github.com/matzehuels/cratestack/pkg/ledger.Ledger
package publish
