package models

// DailyStats is a per-day count row used by the admin dashboard charts.
type DailyStats struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
