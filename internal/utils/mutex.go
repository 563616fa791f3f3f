package utils

import "sync"

var gdalMu sync.Mutex

// ExecuteWithGDALLock serializes GDAL dataset access. Concurrent HTTP
// requests share one process wide GDAL driver state.
func ExecuteWithGDALLock(fn func()) {
	gdalMu.Lock()
	defer gdalMu.Unlock()
	fn()
}
