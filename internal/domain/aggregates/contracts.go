package aggregates

import "fmt"

// WriteTxOwnership says who opens the write transaction.
type WriteTxOwnership string

const (
	// WriteTxOwnedByAggregate: write methods open and commit their own transaction.
	WriteTxOwnedByAggregate WriteTxOwnership = "aggregate_owned"
	// WriteTxOwnedByCaller: write methods join the transaction carried in dbctx.
	WriteTxOwnedByCaller WriteTxOwnership = "caller_owned"
)

// LockOrder names the order row locks are taken in.
type LockOrder string

const (
	LockOrderIntentIDAsc LockOrder = "intent_id_asc"
	LockOrderNone        LockOrder = "none"
)

// Contract is the write policy an aggregate commits to. Callers check it
// instead of assuming how a given implementation behaves.
type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	LockOrder        LockOrder
	// NotifyAfterCommit is set when side effects only leave after commit.
	NotifyAfterCommit bool
	Notes             string
}

type Aggregate interface {
	Contract() Contract
}

func (c Contract) RequiresAggregateOwnedTx() bool {
	return c.WriteTxOwnership == WriteTxOwnedByAggregate
}

func (c Contract) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("aggregate contract: missing name")
	}
	switch c.WriteTxOwnership {
	case WriteTxOwnedByAggregate, WriteTxOwnedByCaller:
	default:
		return fmt.Errorf("aggregate contract %s: unknown tx ownership %q", c.Name, c.WriteTxOwnership)
	}
	switch c.LockOrder {
	case LockOrderIntentIDAsc, LockOrderNone:
	default:
		return fmt.Errorf("aggregate contract %s: unknown lock order %q", c.Name, c.LockOrder)
	}
	return nil
}
