package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/platform/codec"
	"github.com/symphainy/trafficcop/internal/ports"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type KeyOutcome string

// Outcomes are ordered by severity; a key reports the worst outcome among its
// targets.
const (
	OutcomeUnchanged  KeyOutcome = "unchanged"
	OutcomePropagated KeyOutcome = "propagated"
	OutcomeResolved   KeyOutcome = "resolved"
	OutcomeMissing    KeyOutcome = "missing"
	OutcomePending    KeyOutcome = "pending"
	OutcomeFailed     KeyOutcome = "failed"
)

var outcomeRank = map[KeyOutcome]int{
	OutcomeUnchanged:  0,
	OutcomePropagated: 1,
	OutcomeResolved:   2,
	OutcomeMissing:    3,
	OutcomePending:    4,
	OutcomeFailed:     5,
}

type KeySyncResult struct {
	Key        string
	Outcome    KeyOutcome
	Value      any
	Version    int64
	Entries    []domain.StateEntry
	ConflictID domain.ConflictID
	Error      string
}

type SyncResult struct {
	SourceSessionID domain.SessionID
	Strategy        domain.SyncStrategy
	Keys            []KeySyncResult
}

// Converged reports whether every key ended identical at every participant.
func (r SyncResult) Converged() bool {
	for _, key := range r.Keys {
		if !key.Converged() {
			return false
		}
	}
	return true
}

func (k KeySyncResult) Converged() bool {
	switch k.Outcome {
	case OutcomeUnchanged, OutcomePropagated, OutcomeResolved:
		return true
	default:
		return false
	}
}

type ShareResult struct {
	Key     string
	Entries []domain.StateEntry
}

// SyncPlan is one key synchronized between a source address and its targets.
type SyncPlan struct {
	Key              string
	Strategy         domain.SyncStrategy
	ConflictStrategy domain.ConflictStrategy
	SessionID        domain.SessionID
	Source           domain.StateAddress
	Targets          []domain.StateAddress
}

type Synchronizer struct {
	sessions *SessionManager
	resolver *ConflictResolver
	states   ports.StateStore
	dims     *DimensionRegistry
	settings Settings
	opts     options
}

func NewSynchronizer(sessions *SessionManager, resolver *ConflictResolver, states ports.StateStore, dims *DimensionRegistry, settings Settings, opts ...Option) *Synchronizer {
	return &Synchronizer{
		sessions: sessions,
		resolver: resolver,
		states:   states,
		dims:     dims,
		settings: settings.withDefaults(),
		opts:     buildOptions(opts),
	}
}

func (s *Synchronizer) Synchronize(ctx context.Context, cmd SynchronizeStatesCommand) (res SyncResult, err error) {
	ctx, span := startSpan(ctx, s.opts.tracer, "trafficcop.synchronize",
		sessionAttr(cmd.SourceSessionID),
		attribute.String("trafficcop.sync_strategy", string(cmd.Strategy)),
		attribute.StringSlice("trafficcop.keys", cmd.Keys),
	)
	defer func() { endSpan(span, err) }()

	strategy := cmd.Strategy
	if strategy == "" {
		strategy = domain.SyncBidirectional
	}
	if !strategy.Valid() {
		return SyncResult{}, fmt.Errorf("%w: unknown sync strategy %q", domain.ErrInvalidArgument, strategy)
	}
	conflictStrategy, err := s.conflictStrategy(strategy, cmd.ConflictStrategy)
	if err != nil {
		return SyncResult{}, err
	}
	keys := uniqueKeys(cmd.Keys)
	if len(keys) == 0 {
		return SyncResult{}, fmt.Errorf("%w: at least one state key is required", domain.ErrInvalidArgument)
	}
	if len(cmd.TargetSessionIDs) == 0 {
		return SyncResult{}, fmt.Errorf("%w: at least one target session is required", domain.ErrInvalidArgument)
	}

	source, err := s.participant(ctx, cmd.SourceSessionID)
	if err != nil {
		return SyncResult{}, err
	}
	targets := make([]domain.Session, 0, len(cmd.TargetSessionIDs))
	for _, id := range cmd.TargetSessionIDs {
		if id == source.ID {
			continue
		}
		target, err := s.participant(ctx, id)
		if err != nil {
			return SyncResult{}, err
		}
		targets = append(targets, target)
	}

	res = SyncResult{SourceSessionID: source.ID, Strategy: strategy}
	for _, key := range keys {
		owners := map[domain.StateAddress][]domain.SessionID{}
		plan := SyncPlan{Key: key, Strategy: strategy, ConflictStrategy: conflictStrategy, SessionID: source.ID}

		plan.Source, err = s.sessions.AddressFor(source, key, cmd.Scope, cmd.Dimension)
		if err != nil {
			return SyncResult{}, err
		}
		owners[plan.Source] = append(owners[plan.Source], source.ID)
		for _, target := range targets {
			address, err := s.sessions.AddressFor(target, key, cmd.Scope, cmd.Dimension)
			if err != nil {
				return SyncResult{}, err
			}
			owners[address] = append(owners[address], target.ID)
			plan.Targets = append(plan.Targets, address)
		}

		result := s.SyncAddresses(ctx, plan)
		for _, entry := range result.Entries {
			for _, id := range owners[entry.Address] {
				if err := s.sessions.Observe(ctx, id, entry); err != nil {
					return SyncResult{}, err
				}
			}
		}
		res.Keys = append(res.Keys, result)
	}

	span.SetAttributes(attribute.Bool("trafficcop.converged", res.Converged()))
	return res, nil
}

// SyncAddresses synchronizes one key between addresses. Failures are reported
// on the result rather than returned so that other keys still proceed.
func (s *Synchronizer) SyncAddresses(ctx context.Context, plan SyncPlan) KeySyncResult {
	targets := make([]domain.StateAddress, 0, len(plan.Targets))
	for _, address := range uniqueAddresses(plan.Targets) {
		if address != plan.Source {
			targets = append(targets, address)
		}
	}

	var result KeySyncResult
	switch {
	case len(targets) == 0:
		result = s.single(ctx, plan.Source)
	case plan.Strategy == domain.SyncPush:
		result = s.push(ctx, plan, targets)
	case plan.Strategy == domain.SyncPull:
		result = s.pull(ctx, plan, targets)
	default:
		result = s.converge(ctx, plan, targets)
	}
	result.Key = plan.Key

	metadata := map[string]any{
		"key":      plan.Key,
		"strategy": string(plan.Strategy),
		"outcome":  string(result.Outcome),
	}
	if plan.SessionID != "" {
		metadata["session_id"] = string(plan.SessionID)
	}
	s.opts.emitter.Emit(ctx, CollectMetricsCommand{Type: domain.MetricActivity, Name: MetricSyncKeys, Value: 1, Metadata: metadata})
	if !result.Converged() {
		s.opts.emitter.Emit(ctx, CollectMetricsCommand{Type: domain.MetricError, Name: MetricSyncUnconverged, Value: 1, Metadata: metadata})
	}

	if result.Outcome == OutcomeFailed || result.Outcome == OutcomePending {
		s.opts.logger.WarnContext(ctx, "state sync incomplete",
			append(addressLogAttrs(plan.Source),
				slog.String("session_id", string(plan.SessionID)),
				slog.String("outcome", string(result.Outcome)),
				slog.String("error", result.Error),
			)...)
	}
	return result
}

func (s *Synchronizer) single(ctx context.Context, address domain.StateAddress) KeySyncResult {
	entry, live, err := s.lookup(ctx, address)
	switch {
	case err != nil:
		return failed(err)
	case !live:
		return KeySyncResult{Outcome: OutcomeMissing}
	default:
		return settledResult(OutcomeUnchanged, entry)
	}
}

// push copies the source value to every target. Targets holding a different
// value are resolved individually with the push conflict strategy.
func (s *Synchronizer) push(ctx context.Context, plan SyncPlan, targets []domain.StateAddress) KeySyncResult {
	source, live, err := s.lookup(ctx, plan.Source)
	if err != nil {
		return failed(err)
	}
	if !live {
		return KeySyncResult{Outcome: OutcomeMissing}
	}

	var (
		mu      sync.Mutex
		results []KeySyncResult
		g       errgroup.Group
	)
	g.SetLimit(s.settings.WorkflowParallelism)
	for _, target := range targets {
		g.Go(func() error {
			result := s.pushTo(ctx, plan, source, target)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(results) == 1 {
		return results[0]
	}
	combined := combine(results)
	if combined.Outcome == OutcomeUnchanged || combined.Outcome == OutcomePropagated {
		combined.Value = source.Value
		combined.Version = source.Version
	}
	return combined
}

func (s *Synchronizer) pushTo(ctx context.Context, plan SyncPlan, source domain.StateEntry, target domain.StateAddress) KeySyncResult {
	current, live, err := s.lookup(ctx, target)
	if err != nil {
		return failed(err)
	}
	if live && codec.Equal(current.Value, source.Value) {
		return settledResult(OutcomeUnchanged, current)
	}
	if !live {
		entry, err := s.states.Put(ctx, ports.PutRequest{
			Address:         target,
			Value:           source.Value,
			Priority:        source.Priority,
			Owner:           source.Owner,
			Metadata:        source.Metadata,
			ExpectedVersion: domain.VersionAbsent,
			MinVersion:      source.Version,
			UpdatedAt:       source.UpdatedAt,
		})
		if err == nil {
			return settledResult(OutcomePropagated, entry)
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return failed(fmt.Errorf("push %s: %w", target, err))
		}
	}

	return s.resolve(ctx, ResolveRequest{
		Key:       plan.Key,
		Addresses: []domain.StateAddress{target},
		Competing: []domain.StateEntry{source},
		Strategy:  plan.ConflictStrategy,
		SessionID: plan.SessionID,
	})
}

// pull replaces the source value with the targets'. When the targets disagree
// they are resolved among themselves with the pull conflict strategy.
func (s *Synchronizer) pull(ctx context.Context, plan SyncPlan, targets []domain.StateAddress) KeySyncResult {
	var remote []domain.StateEntry
	for _, target := range targets {
		entry, live, err := s.lookup(ctx, target)
		if err != nil {
			return failed(err)
		}
		if live {
			remote = append(remote, entry)
		}
	}
	if len(remote) == 0 {
		return KeySyncResult{Outcome: OutcomeMissing}
	}

	if agree(remote) {
		current, live, err := s.lookup(ctx, plan.Source)
		if err != nil {
			return failed(err)
		}
		if live && codec.Equal(current.Value, remote[0].Value) {
			return settledResult(OutcomeUnchanged, current)
		}
		expected := domain.VersionAbsent
		if live {
			expected = current.Version
		}
		latest := rankOverride(remote)[0]
		entry, err := s.states.Put(ctx, ports.PutRequest{
			Address:         plan.Source,
			Value:           latest.Value,
			Priority:        latest.Priority,
			Owner:           latest.Owner,
			Metadata:        latest.Metadata,
			ExpectedVersion: expected,
			MinVersion:      maxVersion(remote),
			UpdatedAt:       latest.UpdatedAt,
		})
		if err == nil {
			return settledResult(OutcomePropagated, entry)
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return failed(fmt.Errorf("pull %s: %w", plan.Source, err))
		}
	}

	return s.resolve(ctx, ResolveRequest{
		Key:           plan.Key,
		Addresses:     []domain.StateAddress{plan.Source},
		Competing:     remote,
		Strategy:      plan.ConflictStrategy,
		SessionID:     plan.SessionID,
		IgnoreCurrent: true,
	})
}

// converge resolves the key across every participant so that all of them end
// on the same value and version.
func (s *Synchronizer) converge(ctx context.Context, plan SyncPlan, targets []domain.StateAddress) KeySyncResult {
	addresses := append([]domain.StateAddress{plan.Source}, targets...)

	var (
		entries []domain.StateEntry
		missing bool
	)
	for _, address := range addresses {
		entry, live, err := s.lookup(ctx, address)
		if err != nil {
			return failed(err)
		}
		if !live {
			missing = true
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return KeySyncResult{Outcome: OutcomeMissing}
	}
	if !missing && agree(entries) && sameVersion(entries) {
		result := settledResult(OutcomeUnchanged, entries[0])
		result.Entries = entries
		return result
	}

	return s.resolve(ctx, ResolveRequest{
		Key:       plan.Key,
		Addresses: addresses,
		Strategy:  plan.ConflictStrategy,
		SessionID: plan.SessionID,
		Converge:  true,
	})
}

func (s *Synchronizer) resolve(ctx context.Context, req ResolveRequest) KeySyncResult {
	res, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		var unmergeable *domain.UnmergeableError
		if errors.As(err, &unmergeable) {
			return KeySyncResult{Outcome: OutcomePending, ConflictID: unmergeable.ConflictID, Error: err.Error()}
		}
		return failed(err)
	}
	if res.Conflict.Pending() {
		return KeySyncResult{Outcome: OutcomePending, ConflictID: res.Conflict.ID}
	}

	outcome := OutcomeResolved
	if !res.Written {
		outcome = OutcomeUnchanged
	}
	return KeySyncResult{
		Outcome:    outcome,
		Value:      res.Entry.Value,
		Version:    res.Entry.Version,
		Entries:    res.Entries,
		ConflictID: res.Conflict.ID,
	}
}

// Share writes one value to every named dimension and to the address of every
// named session. Without either it writes the caller's own address.
func (s *Synchronizer) Share(ctx context.Context, cmd ShareStateCommand) (res ShareResult, err error) {
	ctx, span := startSpan(ctx, s.opts.tracer, "trafficcop.share_state", sessionAttr(cmd.SessionID), keyAttr(cmd.Key))
	defer func() { endSpan(span, err) }()

	scope := cmd.Scope
	if scope == "" {
		scope = domain.ScopeShared
	}
	if scope == domain.ScopeLocal {
		return ShareResult{}, fmt.Errorf("%w: local state cannot be shared", domain.ErrInvalidArgument)
	}
	key := strings.TrimSpace(cmd.Key)

	owner, err := s.participant(ctx, cmd.SessionID)
	if err != nil {
		return ShareResult{}, err
	}
	dimensions := domain.NormalizeDimensions(cmd.Dimensions)
	if err := s.dims.Require(dimensions...); err != nil {
		return ShareResult{}, err
	}

	owners := map[domain.StateAddress][]domain.SessionID{}
	var addresses []domain.StateAddress
	for _, dimension := range dimensions {
		address := domain.StateAddress{Scope: scope, Dimension: dimension, Key: key}
		if err := address.Validate(); err != nil {
			return ShareResult{}, err
		}
		addresses = append(addresses, address)
	}
	for _, id := range cmd.Sessions {
		session, err := s.participant(ctx, id)
		if err != nil {
			return ShareResult{}, err
		}
		address, err := s.sessions.AddressFor(session, key, scope, "")
		if err != nil {
			return ShareResult{}, err
		}
		owners[address] = append(owners[address], session.ID)
		addresses = append(addresses, address)
	}
	if len(addresses) == 0 {
		address, err := s.sessions.AddressFor(owner, key, scope, "")
		if err != nil {
			return ShareResult{}, err
		}
		addresses = append(addresses, address)
	}

	priority := cmd.Priority
	if priority == 0 {
		priority = owner.Priority
	}
	res = ShareResult{Key: key}
	for _, address := range uniqueAddresses(addresses) {
		entry, err := s.states.Put(ctx, ports.PutRequest{
			Address:  address,
			Value:    cmd.Value,
			Priority: priority,
			Owner:    owner.ID,
			Metadata: cmd.Metadata,
		})
		if err != nil {
			return ShareResult{}, fmt.Errorf("share %s: %w", address, err)
		}
		res.Entries = append(res.Entries, entry)
		for _, id := range owners[address] {
			if id == owner.ID {
				continue
			}
			if err := s.sessions.Observe(ctx, id, entry); err != nil {
				return ShareResult{}, err
			}
		}
	}
	if err := s.sessions.Observe(ctx, owner.ID, res.Entries...); err != nil {
		return ShareResult{}, err
	}

	s.opts.logger.DebugContext(ctx, "state shared",
		slog.String("session_id", string(owner.ID)),
		slog.String("key", key),
		slog.Int("addresses", len(res.Entries)),
	)
	return res, nil
}

// Shared lists entries visible beyond a single session. Without a scope every
// non-local entry is returned.
func (s *Synchronizer) Shared(ctx context.Context, q GetSharedStatesQuery) ([]domain.StateEntry, error) {
	if q.Scope == domain.ScopeLocal {
		return nil, fmt.Errorf("%w: local state is private to its session", domain.ErrInvalidArgument)
	}
	if q.Scope != "" && !q.Scope.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", domain.ErrInvalidArgument, q.Scope)
	}

	entries, err := s.states.List(ctx, ports.StateFilter{Scope: q.Scope, Dimension: q.Dimension})
	if err != nil {
		return nil, fmt.Errorf("list state: %w", err)
	}
	out := entries[:0]
	for _, entry := range entries {
		if entry.Address.Scope != domain.ScopeLocal {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Synchronizer) participant(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if err := writable(session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (s *Synchronizer) conflictStrategy(strategy domain.SyncStrategy, override domain.ConflictStrategy) (domain.ConflictStrategy, error) {
	if override != "" {
		if !override.Valid() {
			return "", fmt.Errorf("%w: unknown conflict strategy %q", domain.ErrInvalidArgument, override)
		}
		return override, nil
	}
	if strategy == domain.SyncPull {
		return s.settings.PullStrategy, nil
	}
	return s.settings.PushStrategy, nil
}

func (s *Synchronizer) lookup(ctx context.Context, address domain.StateAddress) (domain.StateEntry, bool, error) {
	entry, err := s.states.Get(ctx, address)
	if errors.Is(err, domain.ErrStateNotFound) {
		return domain.StateEntry{}, false, nil
	}
	if err != nil {
		return domain.StateEntry{}, false, fmt.Errorf("get state: %w", err)
	}
	return entry, true, nil
}

func combine(results []KeySyncResult) KeySyncResult {
	combined := KeySyncResult{Outcome: OutcomeUnchanged}
	var errs []string
	for _, result := range results {
		if outcomeRank[result.Outcome] > outcomeRank[combined.Outcome] {
			combined.Outcome = result.Outcome
		}
		if result.ConflictID != "" && combined.ConflictID == "" {
			combined.ConflictID = result.ConflictID
		}
		if result.Error != "" {
			errs = append(errs, result.Error)
		}
		combined.Entries = append(combined.Entries, result.Entries...)
	}
	combined.Error = strings.Join(errs, "; ")
	return combined
}

func settledResult(outcome KeyOutcome, entry domain.StateEntry) KeySyncResult {
	return KeySyncResult{
		Outcome: outcome,
		Value:   entry.Value,
		Version: entry.Version,
		Entries: []domain.StateEntry{entry},
	}
}

func failed(err error) KeySyncResult {
	return KeySyncResult{Outcome: OutcomeFailed, Error: err.Error()}
}

func agree(entries []domain.StateEntry) bool {
	for _, entry := range entries[1:] {
		if !codec.Equal(entry.Value, entries[0].Value) {
			return false
		}
	}
	return true
}

func sameVersion(entries []domain.StateEntry) bool {
	for _, entry := range entries[1:] {
		if entry.Version != entries[0].Version {
			return false
		}
	}
	return true
}

func maxVersion(entries []domain.StateEntry) int64 {
	var top int64
	for _, entry := range entries {
		top = max(top, entry.Version)
	}
	return top
}

func uniqueKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
