// Package alerts maps the labeled detections of one object-detection
// cycle to categorical alerts, at most one per category per cycle.
package alerts

import (
	"strings"

	"github.com/teslashibe/go-proctor/pkg/detection"
)

// Category is a prohibited-object class.
type Category string

const (
	Phone  Category = "phone"
	Book   Category = "book"
	Device Category = "device"
)

// Matcher assigns labels containing any keyword to a category.
type Matcher struct {
	Category Category `json:"category"`
	Keywords []string `json:"keywords"`
}

// Matches reports whether label contains one of the keywords,
// case-insensitively.
func (m Matcher) Matches(label string) bool {
	l := strings.ToLower(label)
	for _, kw := range m.Keywords {
		if strings.Contains(l, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// DefaultMatchers returns the phone, book and extra-device matchers.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{Category: Phone, Keywords: []string{"cell phone", "phone"}},
		{Category: Book, Keywords: []string{"book"}},
		{Category: Device, Keywords: []string{"laptop", "tv", "keyboard", "mouse", "monitor"}},
	}
}

// Alert is the deduplicated result for one category in one cycle.
type Alert struct {
	Category      Category `json:"category"`
	Count         int      `json:"count"`
	Labels        []string `json:"labels"`
	MaxConfidence float64  `json:"max_confidence"`
}

// Classifier applies matchers in order.
type Classifier struct {
	matchers []Matcher
}

// NewClassifier creates a classifier. A nil matcher list uses the defaults.
func NewClassifier(matchers []Matcher) *Classifier {
	if matchers == nil {
		matchers = DefaultMatchers()
	}
	return &Classifier{matchers: matchers}
}

// Classify returns one alert per category that matched any object, in
// matcher order, regardless of how many objects matched it.
func (c *Classifier) Classify(objects []detection.Object) []Alert {
	var out []Alert
	for _, m := range c.matchers {
		var a *Alert
		for _, o := range objects {
			if !m.Matches(o.Label) {
				continue
			}
			if a == nil {
				a = &Alert{Category: m.Category}
			}
			a.Count++
			if !contains(a.Labels, o.Label) {
				a.Labels = append(a.Labels, o.Label)
			}
			if o.Confidence > a.MaxConfidence {
				a.MaxConfidence = o.Confidence
			}
		}
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
