// Package mailbox stores messages per recipient in insertion order.
//
// Any authenticated sender may append to any mailbox. Reads and deletes are
// addressed by the caller's own hpk; the package does not enforce that, the
// dispatcher does.
package mailbox

import (
	"context"

	"zax_relay/internal/model"
	"zax_relay/internal/zaxerr"
)

type (
	Store interface {
		// Append assigns msg.ID and adds msg at the end of to's mailbox.
		Append(ctx context.Context, to model.HPK, msg *model.StoredMessage) error

		Count(ctx context.Context, hpk model.HPK) (int, error)

		// ReadRange returns up to limit messages starting at position start.
		// It fails with BadRange when start < 0, or start >= size for a
		// non-empty mailbox; the check and the read see the same snapshot.
		ReadRange(ctx context.Context, hpk model.HPK, start, limit int) ([]model.StoredMessage, error)

		// Delete removes every listed id that exists. Unknown ids are ignored.
		// All ids are removed together or none are.
		Delete(ctx context.Context, hpk model.HPK, ids ...int64) error
	}
)

func checkRange(start, size int) error {
	if start < 0 || (size > 0 && start >= size) {
		return zaxerr.New(zaxerr.BadRange, "mailbox.read", "bad download start position %d for %d messages", start, size)
	}
	return nil
}
