package source

import (
	"fmt"

	"github.com/sells-group/medintel/internal/model"
)

// validateAggregate appends advisory warnings about the result as a whole.
// It never drops records.
func validateAggregate(records []model.Record, maxVolume float64, meta *model.FetchMetadata) {
	if len(records) == 0 {
		return
	}
	var total float64
	for _, r := range records {
		total += r.Volume
	}
	if total == 0 {
		meta.Warn(fmt.Sprintf("total volume is zero across %d records", len(records)))
	}
	if total > maxVolume {
		meta.Warn(fmt.Sprintf("total volume %.0f exceeds plausibility bound %.0f", total, maxVolume))
	}
}
