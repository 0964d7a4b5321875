package director

import (
	"fmt"
	"path/filepath"
	"time"
)

// GenerateTrackPath creates a timestamped track filename inside dir
func GenerateTrackPath(dir string) string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("track_%s.yaml", timestamp))
}
