// Package lease provides owner-tagged, expiring claims on string keys.
//
// A claim is held by exactly one owner until it is released or its lease
// runs out, after which any other owner may take it. Workers use claims to
// get exclusive processing rights on a seeker without a global lock.
package lease

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyKey   = errors.New("lease: empty key")
	ErrEmptyOwner = errors.New("lease: empty owner")
	ErrBadLease   = errors.New("lease: lease must be positive")
)

type Claimer interface {
	// TryClaim takes key for lease. It reports false when another owner holds
	// an unexpired claim. Claiming a key the caller already owns extends it.
	TryClaim(ctx context.Context, key string, lease time.Duration) (bool, error)
	// Renew extends a claim the caller still owns. It reports false when the
	// claim expired and was taken by someone else, or no longer exists.
	Renew(ctx context.Context, key string, lease time.Duration) (bool, error)
	// Release drops the claim if the caller owns it.
	Release(ctx context.Context, key string) error
	Owner() string
}

func SeekerKey(intentID string) string { return "seeker:" + intentID }

func TriangleKey(canonical string) string { return "triangle:" + canonical }

func validate(owner, key string, lease time.Duration) error {
	switch {
	case owner == "":
		return ErrEmptyOwner
	case key == "":
		return ErrEmptyKey
	case lease <= 0:
		return ErrBadLease
	}
	return nil
}
