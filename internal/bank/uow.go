package bank

import (
	"context"
	"log/slog"

	"github.com/quintans/faults"

	"github.com/mmynk/ledgerbank/internal/events"
	"github.com/mmynk/ledgerbank/internal/models"
	"github.com/mmynk/ledgerbank/internal/storage"
)

// unitOfWork is the transaction an operation runs in, plus the events it
// will publish once the outermost unit of work commits.
type unitOfWork struct {
	tx     storage.Tx
	events []events.Event

	// rollbackOnly is the first error of a joined operation. Once set the
	// unit of work can no longer commit, even if the caller drops the error.
	rollbackOnly error
}

func (u *unitOfWork) emit(e events.Event) {
	u.events = append(u.events, e)
}

type uowKey struct{}

func joined(ctx context.Context) *unitOfWork {
	u, _ := ctx.Value(uowKey{}).(*unitOfWork)
	return u
}

// update runs fn in a read-write unit of work, joining the one carried by
// ctx if any. Events are published only by the outermost call.
func (s *Service) update(ctx context.Context, fn func(ctx context.Context, u *unitOfWork) error) error {
	if u := joined(ctx); u != nil {
		err := fn(ctx, u)
		if err != nil && u.rollbackOnly == nil {
			u.rollbackOnly = err
		}
		return err
	}

	var committed []events.Event
	err := s.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		u := &unitOfWork{tx: tx}
		if err := fn(context.WithValue(ctx, uowKey{}, u), u); err != nil {
			return err
		}
		if u.rollbackOnly != nil {
			return faults.Errorf("unit of work is rollback-only: %w", u.rollbackOnly)
		}
		committed = u.events
		return nil
	})
	if err != nil {
		return wrap(err)
	}

	s.publish(ctx, committed)
	return nil
}

// view runs fn against committed state, or inside the joined unit of work.
func (s *Service) view(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if u := joined(ctx); u != nil {
		return fn(ctx, u.tx)
	}
	return wrap(s.store.View(ctx, fn))
}

func (s *Service) publish(ctx context.Context, evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	// The operation has committed; delivery must not inherit its cancellation.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evs...); err != nil {
		slog.Error("Failed to publish events", "count", len(evs), "error", err)
	}
}

// wrap attaches a stack to infrastructure failures. Core errors pass
// through untouched so callers see their kind and message.
func wrap(err error) error {
	if err == nil || models.KindOf(err) != "" {
		return err
	}
	return faults.Wrap(err)
}
