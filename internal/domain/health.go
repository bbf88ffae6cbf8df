package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type MetricType string

const (
	MetricPerformance MetricType = "performance"
	MetricResource    MetricType = "resource"
	MetricError       MetricType = "error"
	MetricActivity    MetricType = "activity"
)

func (t MetricType) Valid() bool {
	switch t {
	case MetricPerformance, MetricResource, MetricError, MetricActivity:
		return true
	default:
		return false
	}
}

type Metric struct {
	ID         string
	SessionID  SessionID
	Type       MetricType
	Name       string
	Value      float64
	Dimensions []DimensionID
	Metadata   map[string]any
	RecordedAt time.Time
}

func (m Metric) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unknown metric type %q", ErrInvalidArgument, m.Type)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: metric name is required", ErrInvalidArgument)
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return fmt.Errorf("%w: metric value must be finite", ErrInvalidArgument)
	}
	return nil
}

type Comparator string

const (
	ComparatorGreaterThan Comparator = "greater_than"
	ComparatorLessThan    Comparator = "less_than"
	ComparatorEquals      Comparator = "equals"
)

func (c Comparator) Valid() bool {
	switch c {
	case ComparatorGreaterThan, ComparatorLessThan, ComparatorEquals:
		return true
	default:
		return false
	}
}

type AlertRule struct {
	MetricName     string
	ThresholdValue float64
	Comparator     Comparator
	Message        string
	UpdatedAt      time.Time
}

func (r AlertRule) Validate() error {
	if strings.TrimSpace(r.MetricName) == "" {
		return &ThresholdConfigError{Field: "metric_name", Reason: "is required"}
	}
	if !r.Comparator.Valid() {
		return &ThresholdConfigError{Field: "threshold_type", Reason: fmt.Sprintf("unknown comparator %q", r.Comparator)}
	}
	if math.IsNaN(r.ThresholdValue) || math.IsInf(r.ThresholdValue, 0) {
		return &ThresholdConfigError{Field: "threshold_value", Reason: "must be finite"}
	}
	return nil
}

func (r AlertRule) Matches(value float64) bool {
	switch r.Comparator {
	case ComparatorGreaterThan:
		return value > r.ThresholdValue
	case ComparatorLessThan:
		return value < r.ThresholdValue
	case ComparatorEquals:
		return value == r.ThresholdValue
	default:
		return false
	}
}

type Alert struct {
	ID             string
	Rule           AlertRule
	MetricID       string
	TriggeredValue float64
	SessionID      SessionID
	RaisedAt       time.Time
}

type MetricSummary struct {
	Name   string
	Type   MetricType
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	Last   float64
	LastAt time.Time
}

func (s *MetricSummary) Add(m Metric) {
	if s.Count == 0 {
		s.Min = m.Value
		s.Max = m.Value
	}
	s.Min = math.Min(s.Min, m.Value)
	s.Max = math.Max(s.Max, m.Value)
	s.Mean = (s.Mean*float64(s.Count) + m.Value) / float64(s.Count+1)
	s.Count++
	if !m.RecordedAt.Before(s.LastAt) {
		s.Last = m.Value
		s.LastAt = m.RecordedAt
	}
}
