package store

import (
	"encoding/csv"
	"strconv"
	"time"

	"github.com/james-livefront/ai-paywall/pkg/detect"
)

// Exported history is CSV with a fixed header row. Columns are only
// ever appended, so existing readers keep working as the format grows.
var exportHeader = []string{
	"ts", "id", "is_bot", "bot_type", "confidence", "detection_method", "user_agent", "remote_addr",
}

func exportRow(res detect.Result) []string {
	return []string{
		res.Timestamp.UTC().Format(time.RFC3339Nano),
		res.ID,
		strconv.FormatBool(res.IsBot),
		res.BotType,
		strconv.FormatFloat(res.Confidence, 'f', -1, 64),
		string(res.Method),
		res.UserAgent,
		res.RemoteAddr,
	}
}

// writeExport streams results as CSV. The caller wraps any error in
// an *ExportError with its store name.
func writeExport(w *csv.Writer, results []detect.Result) error {
	if err := w.Write(exportHeader); err != nil {
		return err
	}
	for _, res := range results {
		if err := w.Write(exportRow(res)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
