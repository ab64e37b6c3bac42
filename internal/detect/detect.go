package detect

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cardwatch/internal/core"
	"cardwatch/internal/flag"
)

// Detect returns the entities whose total inside at least one window exceeds
// threshold. It runs sequentially, performs no I/O and keeps no state between
// calls. Invalid range, step or threshold fail with core.ErrInvalidConfig.
func Detect(ctx context.Context, records []core.Transaction, rng core.TimeRange, threshold decimal.Decimal, step time.Duration) (flag.Set, error) {
	res, err := New().Run(ctx, records, rng, threshold, step)
	if err != nil {
		return flag.Set{}, err
	}
	return res.Flagged, nil
}
