package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Range is an inclusive numeric interval; a nil bound is open.
type Range struct {
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
}

// AtLeast returns a range with only a lower bound.
func AtLeast(n int64) *Range { return &Range{Min: &n} }

// AtMost returns a range with only an upper bound.
func AtMost(n int64) *Range { return &Range{Max: &n} }

// Between returns a closed range.
func Between(lo, hi int64) *Range { return &Range{Min: &lo, Max: &hi} }

func (r *Range) empty() bool {
	return r == nil || (r.Min == nil && r.Max == nil)
}

// Contains reports whether v lies within the range. A nil range contains everything.
func (r *Range) Contains(v int64) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func (r *Range) validate(field string) error {
	if r == nil || r.Min == nil || r.Max == nil {
		return nil
	}
	if *r.Min > *r.Max {
		return fmt.Errorf("%s min %d is greater than max %d", field, *r.Min, *r.Max)
	}
	return nil
}

// Filter is a conjunction of metadata predicates. Exact fields compare
// case-insensitively; Tags match when any tag is shared.
type Filter struct {
	Category     string   `json:"category,omitempty"`
	CategoryID   *int     `json:"category_id,omitempty"`
	Country      string   `json:"country,omitempty"`
	Language     string   `json:"language,omitempty"`
	Channel      string   `json:"channel,omitempty"`
	Views        *Range   `json:"views,omitempty"`
	Likes        *Range   `json:"likes,omitempty"`
	DaysTrending *Range   `json:"days_trending,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// IsEmpty reports whether no predicate is populated. A nil filter is empty.
func (f *Filter) IsEmpty() bool {
	if f == nil {
		return true
	}
	return f.Category == "" && f.CategoryID == nil && f.Country == "" && f.Language == "" &&
		f.Channel == "" && f.Views.empty() && f.Likes.empty() && f.DaysTrending.empty() &&
		len(f.Tags) == 0
}

// Normalized returns nil for an empty filter, otherwise a copy with empty
// ranges dropped.
func (f *Filter) Normalized() *Filter {
	if f.IsEmpty() {
		return nil
	}
	out := f.Clone()
	if out.Views.empty() {
		out.Views = nil
	}
	if out.Likes.empty() {
		out.Likes = nil
	}
	if out.DaysTrending.empty() {
		out.DaysTrending = nil
	}
	return out
}

// Clone returns a deep copy.
func (f *Filter) Clone() *Filter {
	if f == nil {
		return nil
	}
	out := *f
	if f.CategoryID != nil {
		id := *f.CategoryID
		out.CategoryID = &id
	}
	out.Views = cloneRange(f.Views)
	out.Likes = cloneRange(f.Likes)
	out.DaysTrending = cloneRange(f.DaysTrending)
	if f.Tags != nil {
		out.Tags = append([]string(nil), f.Tags...)
	}
	return &out
}

func cloneRange(r *Range) *Range {
	if r == nil {
		return nil
	}
	out := &Range{}
	if r.Min != nil {
		v := *r.Min
		out.Min = &v
	}
	if r.Max != nil {
		v := *r.Max
		out.Max = &v
	}
	return out
}

// Validate rejects ranges whose lower bound exceeds the upper bound.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	if err := f.Views.validate("views"); err != nil {
		return err
	}
	if err := f.Likes.validate("likes"); err != nil {
		return err
	}
	return f.DaysTrending.validate("days_trending")
}

// Matches reports whether the record satisfies every populated predicate.
func (f *Filter) Matches(v VideoRecord) bool {
	if f == nil {
		return true
	}
	if f.Category != "" && !strings.EqualFold(f.Category, v.Category) {
		return false
	}
	if f.CategoryID != nil && *f.CategoryID != v.CategoryID {
		return false
	}
	if f.Country != "" && !strings.EqualFold(f.Country, v.Country) {
		return false
	}
	if f.Language != "" && !strings.EqualFold(f.Language, v.Language) {
		return false
	}
	if f.Channel != "" && !strings.EqualFold(f.Channel, v.Channel) {
		return false
	}
	if !f.Views.Contains(v.Views) || !f.Likes.Contains(v.Likes) ||
		!f.DaysTrending.Contains(int64(v.DaysTrendingUnique)) {
		return false
	}
	if len(f.Tags) > 0 && !tagsIntersect(f.Tags, v.Tags) {
		return false
	}
	return true
}

func tagsIntersect(want, have []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[strings.ToLower(strings.TrimSpace(t))]; ok {
			return true
		}
	}
	return false
}

// Merge returns f with every populated field of override applied on top.
func (f *Filter) Merge(override *Filter) *Filter {
	if override.IsEmpty() {
		return f.Normalized()
	}
	if f.IsEmpty() {
		return override.Normalized()
	}
	out := f.Clone()
	o := override.Clone()
	if o.Category != "" {
		out.Category = o.Category
	}
	if o.CategoryID != nil {
		out.CategoryID = o.CategoryID
	}
	if o.Country != "" {
		out.Country = o.Country
	}
	if o.Language != "" {
		out.Language = o.Language
	}
	if o.Channel != "" {
		out.Channel = o.Channel
	}
	if !o.Views.empty() {
		out.Views = o.Views
	}
	if !o.Likes.empty() {
		out.Likes = o.Likes
	}
	if !o.DaysTrending.empty() {
		out.DaysTrending = o.DaysTrending
	}
	if len(o.Tags) > 0 {
		out.Tags = o.Tags
	}
	return out.Normalized()
}

// String renders the filter as compact JSON for diagnostics.
func (f *Filter) String() string {
	if f.IsEmpty() {
		return "{}"
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "{}"
	}
	return string(b)
}
