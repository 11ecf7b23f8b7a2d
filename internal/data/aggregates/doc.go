// Package aggregates implements the match formation writes.
//
// Each write runs in one transaction owned by the aggregate: intents are locked in id
// order, credits move through the ledger, match rows are inserted, and notifications are
// only dispatched once the transaction has committed.
package aggregates
