package domain

import (
	"fmt"
	"strings"
	"time"
)

type CoordinationType string

const (
	CoordinationStateSync       CoordinationType = "state_sync"
	CoordinationWorkflow        CoordinationType = "workflow_coordination"
	CoordinationResourceSharing CoordinationType = "resource_sharing"
)

func (t CoordinationType) Valid() bool {
	switch t {
	case CoordinationStateSync, CoordinationWorkflow, CoordinationResourceSharing:
		return true
	default:
		return false
	}
}

type SyncStrategy string

const (
	SyncPush          SyncStrategy = "push"
	SyncPull          SyncStrategy = "pull"
	SyncBidirectional SyncStrategy = "bidirectional"
)

func (s SyncStrategy) Valid() bool {
	switch s {
	case SyncPush, SyncPull, SyncBidirectional:
		return true
	default:
		return false
	}
}

func ParseSyncStrategy(raw string) (SyncStrategy, error) {
	strategy := SyncStrategy(strings.ToLower(strings.TrimSpace(raw)))
	if !strategy.Valid() {
		return "", fmt.Errorf("%w: unknown sync strategy %q", ErrInvalidArgument, raw)
	}
	return strategy, nil
}

type ExecutionStrategy string

const (
	ExecutionSequential ExecutionStrategy = "sequential"
	ExecutionParallel   ExecutionStrategy = "parallel"
)

func (s ExecutionStrategy) Valid() bool {
	return s == ExecutionSequential || s == ExecutionParallel
}

type WorkflowStep struct {
	Name      string
	Dimension DimensionID
	Action    string
	Params    map[string]any
}

type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepCancelled StepStatus = "cancelled"
)

type StepResult struct {
	Name      string
	Dimension DimensionID
	Action    string
	Status    StepStatus
	Output    map[string]any
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

type EventStatus string

const (
	EventRecorded  EventStatus = "recorded"
	EventSucceeded EventStatus = "succeeded"
	EventFailed    EventStatus = "failed"
)

type OrchestrationEvent struct {
	ID         string
	SessionID  SessionID
	Dimension  DimensionID
	Type       string
	Action     string
	Status     EventStatus
	Detail     string
	Payload    map[string]any
	Duration   time.Duration
	RecordedAt time.Time
}
