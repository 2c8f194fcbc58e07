package live

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

const (
	// Uncategorized collects documents without a category value.
	Uncategorized = "uncategorized"
	// UnknownMonth collects documents with a missing or malformed date.
	UnknownMonth = "Unknown"

	monthLabelLayout = "Jan 2006"

	defaultTopN          = 3
	defaultUpcomingLimit = 5
)

// MonthOrder selects how monthly buckets are sorted.
type MonthOrder int

const (
	// MonthOrderLabel sorts buckets by their "Jan 2006" label as plain strings.
	MonthOrderLabel MonthOrder = iota
	// MonthOrderCalendar sorts buckets chronologically with Unknown last.
	MonthOrderCalendar
)

// SummaryOptions names the document fields a summary is computed from.
type SummaryOptions struct {
	SumField      string
	CategoryField string
	DateField     string
	LabelField    string
	// TopN limits TopCategories. Zero means 3, negative means unlimited.
	TopN int
	// UpcomingLimit limits UpcomingList. Zero means 5.
	UpcomingLimit int
	MonthOrder    MonthOrder
	Now           func() time.Time
}

// CategoryCount is one entry of the category histogram.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// MonthlyBucket accumulates documents sharing a calendar month.
type MonthlyBucket struct {
	Month     string  `json:"month"`
	Events    int     `json:"events"`
	Attendees float64 `json:"attendees"`
}

// UpcomingItem is a document scheduled at or after now.
type UpcomingItem struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Category string    `json:"category"`
	Date     time.Time `json:"date"`
}

// Summary is the derived view of a document set.
type Summary struct {
	Count             int             `json:"count"`
	Total             float64         `json:"total"`
	Upcoming          int             `json:"upcoming"`
	AverageAttendance int64           `json:"average_attendance"`
	TopCategories     []CategoryCount `json:"top_categories"`
	Monthly           []MonthlyBucket `json:"monthly"`
	UpcomingList      []UpcomingItem  `json:"upcoming_list"`
}

// EmptySummary is the summary of no documents.
func EmptySummary() Summary {
	return Summary{
		TopCategories: []CategoryCount{},
		Monthly:       []MonthlyBucket{},
		UpcomingList:  []UpcomingItem{},
	}
}

// Summarize folds the latest document set into a Summary. The result depends
// only on docs and opts, so equal inputs give equal summaries.
func Summarize(docs []docstore.Document, opts SummaryOptions) Summary {
	summary := EmptySummary()
	summary.Count = len(docs)

	now := time.Now()
	if opts.Now != nil {
		now = opts.Now()
	}

	categoryIndex := make(map[string]int)
	monthIndex := make(map[string]int)
	monthTimes := make(map[string]time.Time)
	upcoming := make([]UpcomingItem, 0)

	for _, doc := range docs {
		value := sumValue(doc, opts.SumField)
		summary.Total += value

		if opts.CategoryField != "" {
			category := categoryOf(doc, opts.CategoryField)
			if i, ok := categoryIndex[category]; ok {
				summary.TopCategories[i].Count++
			} else {
				categoryIndex[category] = len(summary.TopCategories)
				summary.TopCategories = append(summary.TopCategories, CategoryCount{Category: category, Count: 1})
			}
		}

		if opts.DateField == "" {
			continue
		}
		date, ok := dateOf(doc, opts.DateField)
		label := UnknownMonth
		if ok {
			label = date.Format(monthLabelLayout)
			monthTimes[label] = time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
		}
		if i, exists := monthIndex[label]; exists {
			summary.Monthly[i].Events++
			summary.Monthly[i].Attendees += value
		} else {
			monthIndex[label] = len(summary.Monthly)
			summary.Monthly = append(summary.Monthly, MonthlyBucket{Month: label, Events: 1, Attendees: value})
		}

		if ok && !date.Before(now) {
			summary.Upcoming++
			item := UpcomingItem{ID: doc.ID, Date: date}
			if opts.LabelField != "" {
				item.Label = doc.String(opts.LabelField)
			}
			if opts.CategoryField != "" {
				item.Category = categoryOf(doc, opts.CategoryField)
			}
			upcoming = append(upcoming, item)
		}
	}

	if summary.Count > 0 {
		summary.AverageAttendance = int64(math.Round(summary.Total / float64(summary.Count) * 100))
	}

	sort.SliceStable(summary.TopCategories, func(i, j int) bool {
		return summary.TopCategories[i].Count > summary.TopCategories[j].Count
	})
	topN := opts.TopN
	if topN == 0 {
		topN = defaultTopN
	}
	if topN > 0 && len(summary.TopCategories) > topN {
		summary.TopCategories = summary.TopCategories[:topN]
	}

	if opts.MonthOrder == MonthOrderCalendar {
		sort.SliceStable(summary.Monthly, func(i, j int) bool {
			ti, iok := monthTimes[summary.Monthly[i].Month]
			tj, jok := monthTimes[summary.Monthly[j].Month]
			if iok != jok {
				return iok
			}
			return ti.Before(tj)
		})
	} else {
		sort.SliceStable(summary.Monthly, func(i, j int) bool {
			return summary.Monthly[i].Month < summary.Monthly[j].Month
		})
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].Date.Before(upcoming[j].Date)
	})
	limit := opts.UpcomingLimit
	if limit <= 0 {
		limit = defaultUpcomingLimit
	}
	if len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}
	summary.UpcomingList = upcoming
	return summary
}

// sumValue counts a numeric field by value and an array field by length.
func sumValue(doc docstore.Document, field string) float64 {
	if field == "" {
		return 0
	}
	v, ok := doc.Get(field)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return float64(rv.Len())
	}
	return 0
}

func categoryOf(doc docstore.Document, field string) string {
	v, ok := doc.Get(field)
	if !ok || v == nil {
		return Uncategorized
	}
	category := strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
	if category == "" {
		return Uncategorized
	}
	return category
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func dateOf(doc docstore.Document, field string) (time.Time, bool) {
	v, ok := doc.Get(field)
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t, true
	case string:
		raw := strings.TrimSpace(t)
		if raw == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
