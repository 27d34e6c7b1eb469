package fetch

import (
	"time"

	"github.com/adam7171512/scrape/model"
)

// Windows splits [start, end] into windows of deltaDays. Each window starts where the
// previous one ended and the last one is clamped to end.
func Windows(start, end time.Time, deltaDays int) []model.Window {
	if deltaDays <= 0 {
		return nil
	}
	start, end = model.Day(start), model.Day(end)

	var windows []model.Window
	for from := start; !from.After(end); from = from.AddDate(0, 0, deltaDays) {
		to := from.AddDate(0, 0, deltaDays)
		if to.After(end) {
			to = end
		}
		windows = append(windows, model.Window{From: from, To: to})
	}

	return windows
}
