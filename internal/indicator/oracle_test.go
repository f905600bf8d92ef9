package indicator

import (
	"testing"

	"github.com/markcheno/go-talib"

	"regime-seeker/internal/model"
)

// TA-Lib seeds its EMA with the SMA of the first period values, the same
// rule used here, so the two must agree once both are defined.
func TestEMA_AgreesWithTALib(t *testing.T) {
	for _, period := range []int{3, 9, 21, 50} {
		closes := model.Closes(randomWalk(int64(period), 240))
		ours := EMASeries(closes, period)
		ref := talib.Ema(closes, period)
		for i := period - 1; i < len(closes); i++ {
			assertClose(t, "EMA vs talib", ours[i], ref[i], 1e-9)
		}
	}
}
