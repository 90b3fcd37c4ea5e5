// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package policy

import (
	"testing"
	"time"
)

func TestParseWindows(t *testing.T) {
	t.Run("valid entries", func(t *testing.T) {
		windows, err := parseWindows([]string{"08:00-17:30", "22:00-06:00"})
		if err != nil {
			t.Fatalf("parseWindows failed: %v", err)
		}
		if len(windows) != 2 {
			t.Fatalf("len = %d, want 2", len(windows))
		}
		if windows[0].start != 8*60 || windows[0].end != 17*60+30 {
			t.Errorf("windows[0] = %+v", windows[0])
		}
		if windows[1].start != 22*60 || windows[1].end != 6*60 {
			t.Errorf("windows[1] = %+v", windows[1])
		}
	})

	t.Run("invalid entry fails the whole parse", func(t *testing.T) {
		for _, entries := range [][]string{
			{"08:00-17:00", "nonsense"},
			{"8am-5pm"},
			{"08:00"},
			{"25:00-26:00"},
			{"08:00-08:00"},
		} {
			if _, err := parseWindows(entries); err == nil {
				t.Errorf("parseWindows(%v) succeeded, want error", entries)
			}
		}
	})

	t.Run("empty schedule", func(t *testing.T) {
		windows, err := parseWindows(nil)
		if err != nil {
			t.Fatalf("parseWindows(nil) failed: %v", err)
		}
		if len(windows) != 0 {
			t.Errorf("len = %d, want 0", len(windows))
		}
	})
}

func TestInSchedule(t *testing.T) {
	clock := func(h, m int) time.Time {
		return time.Date(2026, 8, 1, h, m, 0, 0, time.Local)
	}

	t.Run("daytime window", func(t *testing.T) {
		windows, _ := parseWindows([]string{"09:00-17:00"})
		cases := []struct {
			h, m int
			want bool
		}{
			{8, 59, false},
			{9, 0, true},
			{12, 30, true},
			{16, 59, true},
			{17, 0, false}, // end exclusive
		}
		for _, tc := range cases {
			if got := inSchedule(windows, clock(tc.h, tc.m)); got != tc.want {
				t.Errorf("inSchedule at %02d:%02d = %v, want %v", tc.h, tc.m, got, tc.want)
			}
		}
	})

	t.Run("midnight wrap", func(t *testing.T) {
		windows, _ := parseWindows([]string{"22:00-06:00"})
		cases := []struct {
			h, m int
			want bool
		}{
			{21, 59, false},
			{22, 0, true},
			{23, 59, true},
			{0, 0, true},
			{5, 59, true},
			{6, 0, false},
			{12, 0, false},
		}
		for _, tc := range cases {
			if got := inSchedule(windows, clock(tc.h, tc.m)); got != tc.want {
				t.Errorf("inSchedule at %02d:%02d = %v, want %v", tc.h, tc.m, got, tc.want)
			}
		}
	})

	t.Run("no windows never records", func(t *testing.T) {
		if inSchedule(nil, clock(12, 0)) {
			t.Error("empty schedule reported in-window")
		}
	})
}
