package domain

import (
	"strings"
	"time"
)

type DimensionID string

type Dimension struct {
	ID          DimensionID
	DisplayName string
}

func NewDimension(id DimensionID) Dimension {
	name := strings.TrimSpace(string(id))
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return Dimension{ID: id, DisplayName: name}
}

type DimensionStatus struct {
	SessionID   SessionID
	Dimension   DimensionID
	Events      int
	Failures    int
	StateCount  int
	LastStatus  EventStatus
	LastEventAt time.Time
}
