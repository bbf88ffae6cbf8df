package application

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/symphainy/trafficcop/internal/domain"
)

const (
	DefaultSessionTTL          = 24 * time.Hour
	DefaultSweepInterval       = 5 * time.Minute
	DefaultMaxAttempts         = 8
	DefaultRetryInterval       = 10 * time.Millisecond
	DefaultWorkflowParallelism = 8
	DefaultErrorRateThreshold  = 0.1
	DefaultPendingConflicts    = 25
)

// TenantPolicy decides what happens when the access guard rejects a call.
type TenantPolicy string

const (
	TenantPolicyEnforce  TenantPolicy = "enforce"
	TenantPolicyAdvisory TenantPolicy = "advisory"
	TenantPolicyOff      TenantPolicy = "off"
)

func ParseTenantPolicy(raw string) (TenantPolicy, error) {
	policy := TenantPolicy(strings.ToLower(strings.TrimSpace(raw)))
	switch policy {
	case TenantPolicyEnforce, TenantPolicyAdvisory, TenantPolicyOff:
		return policy, nil
	default:
		return "", fmt.Errorf("%w: unknown tenant policy %q", domain.ErrInvalidArgument, raw)
	}
}

// RetryPolicy bounds the compare-and-swap loops used for write-back.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = 50 * p.InitialInterval
	return b
}

type Settings struct {
	SessionTTL               time.Duration
	TempTTL                  time.Duration
	SweepInterval            time.Duration
	PushStrategy             domain.ConflictStrategy
	PullStrategy             domain.ConflictStrategy
	Retry                    RetryPolicy
	WorkflowParallelism      int
	TenantPolicy             TenantPolicy
	Dimensions               []domain.DimensionID
	ErrorRateThreshold       float64
	PendingConflictThreshold int
}

func DefaultSettings() Settings {
	return Settings{}.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.SessionTTL <= 0 {
		s.SessionTTL = DefaultSessionTTL
	}
	if s.TempTTL <= 0 {
		s.TempTTL = s.SessionTTL
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = DefaultSweepInterval
	}
	if s.PushStrategy == "" {
		s.PushStrategy = domain.StrategyOverride
	}
	if s.PullStrategy == "" {
		s.PullStrategy = domain.StrategyOverride
	}
	if s.Retry.MaxAttempts == 0 {
		s.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if s.Retry.InitialInterval <= 0 {
		s.Retry.InitialInterval = DefaultRetryInterval
	}
	if s.WorkflowParallelism <= 0 {
		s.WorkflowParallelism = DefaultWorkflowParallelism
	}
	if s.TenantPolicy == "" {
		s.TenantPolicy = TenantPolicyEnforce
	}
	if s.ErrorRateThreshold <= 0 {
		s.ErrorRateThreshold = DefaultErrorRateThreshold
	}
	if s.PendingConflictThreshold <= 0 {
		s.PendingConflictThreshold = DefaultPendingConflicts
	}
	s.Dimensions = domain.NormalizeDimensions(s.Dimensions)
	if len(s.Dimensions) == 0 {
		s.Dimensions = slices.Clone(DefaultDimensions)
	}
	return s
}

func (s Settings) Validate() error {
	for _, strategy := range []domain.ConflictStrategy{s.PushStrategy, s.PullStrategy} {
		if !strategy.Valid() {
			return fmt.Errorf("%w: unknown conflict strategy %q", domain.ErrInvalidArgument, strategy)
		}
	}
	if _, err := ParseTenantPolicy(string(s.TenantPolicy)); err != nil {
		return err
	}
	return nil
}
