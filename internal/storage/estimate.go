package storage

import (
	"context"
	"fmt"
	"os"
)

// FileEstimator measures usage as the on-disk size of the queue database
// against a configured quota budget. This is the desktop stand-in for a
// browser's storage estimate call.
type FileEstimator struct {
	Path  string
	Quota int64
}

// Estimate returns the current file size and the configured quota. A
// missing file counts as zero usage; a zero or negative quota means the
// host gave us no budget to measure against, which is reported as an
// error so the monitor degrades to fail-open.
func (f FileEstimator) Estimate(_ context.Context) (int64, int64, error) {
	if f.Quota <= 0 {
		return 0, 0, fmt.Errorf("no storage quota configured")
	}

	info, err := os.Stat(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, f.Quota, nil
		}

		return 0, 0, fmt.Errorf("measuring queue database: %w", err)
	}

	return info.Size(), f.Quota, nil
}
