package inventory

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cafehub/internal/apperr"
	"cafehub/internal/lock"
)

const maxLockAttempts = 8

// UnlockedError reports a stock write on an ingredient whose lock the
// caller does not hold. The transaction must be rolled back and retried
// with the ingredient added to the lock set.
type UnlockedError struct {
	IngredientID uint
}

func (e *UnlockedError) Error() string {
	return fmt.Sprintf("ingredient %d is not locked", e.IngredientID)
}

// WithLocks holds keys plus the locks of ingredientIDs while fn runs. The
// ingredient set fn may write is passed in as held. When fn fails with an
// UnlockedError, because a recipe or the ledger changed between planning and
// locking, the missing ingredient joins the set and fn runs again.
func (s *Service) WithLocks(keys []string, ingredientIDs []uint, fn func(held []uint) error) error {
	held := uniqueIDs(ingredientIDs)
	for attempt := 1; ; attempt++ {
		all := append(append([]string{}, keys...), ingredientKeys(held)...)
		unlock := s.locks.Lock(all...)
		err := fn(held)
		unlock()

		var unlocked *UnlockedError
		if !errors.As(err, &unlocked) {
			return err
		}
		if attempt == maxLockAttempts {
			return apperr.New(apperr.KindConflict, "stock changed concurrently, retry")
		}
		s.logger.Debug("ingredient lock set grew, retrying", zap.Uint("ingredient_id", unlocked.IngredientID))
		held = append(held, unlocked.IngredientID)
	}
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func ingredientKeys(ids []uint) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, lock.IngredientKey(id))
	}
	return keys
}
