// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package policy

import (
	"fmt"
	"strings"
	"time"
)

// window is one daily recording window. Windows may wrap midnight, in
// which case start > end ("22:00-06:00").
type window struct {
	start int // minutes since midnight
	end   int
}

func (w window) contains(minute int) bool {
	if w.start <= w.end {
		return minute >= w.start && minute < w.end
	}
	return minute >= w.start || minute < w.end
}

// parseWindows parses "HH:MM-HH:MM" schedule entries. Invalid entries
// fail the whole parse so a typo cannot silently disable recording.
func parseWindows(entries []string) ([]window, error) {
	windows := make([]window, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(strings.TrimSpace(entry), "-", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("schedule entry %q: want HH:MM-HH:MM", entry)
		}
		start, err := parseMinute(parts[0])
		if err != nil {
			return nil, fmt.Errorf("schedule entry %q: %w", entry, err)
		}
		end, err := parseMinute(parts[1])
		if err != nil {
			return nil, fmt.Errorf("schedule entry %q: %w", entry, err)
		}
		if start == end {
			return nil, fmt.Errorf("schedule entry %q: empty window", entry)
		}
		windows = append(windows, window{start: start, end: end})
	}
	return windows, nil
}

func parseMinute(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("bad time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// inSchedule reports whether now falls in any window, local time.
func inSchedule(windows []window, now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	for _, w := range windows {
		if w.contains(minute) {
			return true
		}
	}
	return false
}
