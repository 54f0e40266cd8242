package ingest

import (
	"testing"
	"time"
)

func TestInferSourceType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"UBS_House_View_March_2025.pdf", SourceUBSHouseView},
		{"house_view_q1.pdf", SourceUBSHouseView},
		{"AAPL_10-K_2024.pdf", SourceSEC10K},
		{"msft_10k.pdf", SourceSEC10K},
		{"nvda_10Q_2025.pdf", SourceSEC10Q},
		{"fomc_minutes_2025-01-29.pdf", SourceFOMCMinutes},
		{"jpm_2025_outlook.pdf", SourceBankOutlook},
		{"report_march.pdf", SourceUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferSourceType(tt.name); got != tt.want {
				t.Errorf("InferSourceType(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestInferPublishedDate(t *testing.T) {
	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		want time.Time
	}{
		{"UBS_House_View_March_2025.pdf", date(2025, time.March, 1)},
		{"UBS_House_View_November_2024.pdf", date(2024, time.November, 1)},
		{"outlook_sep2024.pdf", date(2024, time.September, 1)},
		{"fomc_minutes_2025-01-29.pdf", date(2025, time.January, 29)},
		{"report_2025_06.pdf", date(2025, time.June, 1)},
		{"outlook_Q3_2024.pdf", date(2024, time.July, 1)},
		{"outlook_2025q2.pdf", date(2025, time.April, 1)},
		{"AAPL_10-K_2024.pdf", date(2024, time.January, 1)},
		{"report_march.pdf", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferPublishedDate(tt.name); !got.Equal(tt.want) {
				t.Errorf("InferPublishedDate(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
