package timer

import (
	"fmt"
	"strings"
	"time"

	tberrors "github.com/fakeyudi/timebox/internal/errors"
)

// Category is the tag used to group timers for batch operations.
type Category string

const (
	Workout Category = "Workout"
	Study   Category = "Study"
	Break   Category = "Break"
)

var categories = []Category{Workout, Study, Break}

// Categories returns the fixed category set in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory resolves a category name, case-insensitively.
func ParseCategory(name string) (Category, error) {
	for _, c := range categories {
		if strings.EqualFold(string(c), strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return "", tberrors.NewValidation(fmt.Sprintf("unknown category %q (want one of %s)", name, categoryList()))
}

func categoryList() string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// HistoryEntry records one completed timer. Entries are immutable.
type HistoryEntry struct {
	Name        string   `json:"name" yaml:"name"`
	Category    Category `json:"category" yaml:"category"`
	CompletedAt string   `json:"completedAt" yaml:"completedAt"`
}

// CompletedTime parses CompletedAt. Entries written by older clients may carry
// a locale-formatted string, in which case ok is false.
func (e HistoryEntry) CompletedTime() (t time.Time, ok bool) {
	parsed, err := time.Parse(time.RFC3339, e.CompletedAt)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
