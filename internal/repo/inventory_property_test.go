package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Skotchmaster/storefront/internal/apperr"
)

// Any interleaving of reserves and releases keeps variant stock non-negative,
// totalQuantity equal to the sum of variants and totalSold non-negative.
func TestLedgerInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("ledger invariants hold after every operation", prop.ForAll(
		func(initial int64, ops []int) bool {
			r := newTestRepo(t)
			ctx := context.Background()
			p := seedProduct(t, r, "Tee", "100", variantSeed{"Red", "M", initial}, variantSeed{"Blue", "S", 1})

			want := initial
			for _, op := range ops {
				switch {
				case op > 0:
					_, err := r.ReserveLines(ctx, []Line{{ProductID: p.ID, Color: "red", Size: "m", Quantity: int64(op)}})
					if err == nil {
						want -= int64(op)
					} else if !errors.Is(err, apperr.ErrInsufficientStock) || int64(op) <= want {
						return false
					}
				case op < 0:
					if err := r.ReleaseLines(ctx, []Line{{ProductID: p.ID, Color: "Red", Size: "M", Quantity: int64(-op)}}); err != nil {
						return false
					}
					want += int64(-op)
				}

				got := reload(t, r, p.ID)
				qty := variantQty(got, "Red", "M")
				if qty < 0 || qty != want || got.TotalQuantity != sumVariants(got) || got.TotalSold < 0 {
					return false
				}
			}
			return true
		},
		gen.Int64Range(0, 10),
		gen.SliceOfN(8, gen.IntRange(-3, 5)),
	))

	properties.TestingRun(t)
}
