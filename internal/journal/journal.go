package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"wgwatchdog/internal/model"
)

var header = []string{
	"timestamp",
	"interface",
	"mode",
	"action",
	"reason",
	"handshake_age_sec",
	"reachable",
	"remaining_min",
	"error",
}

// Append adds records to the CSV journal at path, writing the header only
// when the file is new or empty.
func Append(path string, items []model.RunRecord) error {
	if len(items) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	return write(file, items, info.Size() == 0)
}

func write(w io.Writer, items []model.RunRecord, withHeader bool) error {
	writer := csv.NewWriter(w)
	if withHeader {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	for _, r := range items {
		record := []string{
			r.Timestamp.UTC().Format(time.RFC3339),
			r.Interface,
			string(r.Mode),
			string(r.Action),
			r.Reason,
			strconv.FormatInt(r.HandshakeAgeSec, 10),
			strconv.FormatBool(r.Reachable),
			strconv.FormatInt(r.RemainingMinutes, 10),
			r.Error,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Read loads the journal at path.
func Read(path string) ([]model.RunRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return read(file)
}

// Tail returns the last n records for iface, oldest first.
func Tail(items []model.RunRecord, iface string, n int) []model.RunRecord {
	out := make([]model.RunRecord, 0, n)
	for i := len(items) - 1; i >= 0 && len(out) < n; i-- {
		if iface == "" || items[i].Interface == iface {
			out = append(out, items[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func read(r io.Reader) ([]model.RunRecord, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if len(records[0]) > 0 && records[0][0] == "timestamp" {
		start = 1
	}

	items := make([]model.RunRecord, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < len(header) {
			return nil, fmt.Errorf("invalid record at line %d", i+1)
		}
		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp at line %d: %w", i+1, err)
		}
		age, _ := strconv.ParseInt(rec[5], 10, 64)
		reachable, _ := strconv.ParseBool(rec[6])
		remaining, _ := strconv.ParseInt(rec[7], 10, 64)
		items = append(items, model.RunRecord{
			Timestamp:        ts,
			Interface:        rec[1],
			Mode:             model.Mode(rec[2]),
			Action:           model.Action(rec[3]),
			Reason:           rec[4],
			HandshakeAgeSec:  age,
			Reachable:        reachable,
			RemainingMinutes: remaining,
			Error:            rec[8],
		})
	}
	return items, nil
}
