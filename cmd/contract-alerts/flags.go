package main

import (
	"flag"
	"fmt"
	"time"
)

func parseDateFlag() (time.Time, error) {
	date := flag.String("date", "", "alert date (YYYY-MM-DD), defaults to today")
	flag.Parse()
	if *date == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, *date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -date %q: %w", *date, err)
	}
	return t, nil
}
