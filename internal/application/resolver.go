package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/platform/codec"
	"github.com/symphainy/trafficcop/internal/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ResolveRequest names the competitors for one logical key and the addresses
// the outcome is written to. With ConflictID set, the recorded conflict
// supplies both and the request fills in the strategy.
type ResolveRequest struct {
	ConflictID domain.ConflictID
	Key        string
	Addresses  []domain.StateAddress
	Competing  []domain.StateEntry
	Strategy   domain.ConflictStrategy
	SessionID  domain.SessionID

	// IgnoreCurrent leaves the entries stored at Addresses out of the
	// competition. Pull sync uses it to replace the source value.
	IgnoreCurrent bool
	// Converge requires every address to end on the same version, not only
	// the same value.
	Converge bool
}

type Resolution struct {
	Conflict domain.Conflict
	Entry    domain.StateEntry
	Entries  []domain.StateEntry
	Written  bool
}

type ConflictResolver struct {
	states    ports.StateStore
	conflicts ports.ConflictRepository
	clock     ports.Clock
	retry     RetryPolicy
	opts      options
}

func NewConflictResolver(states ports.StateStore, conflicts ports.ConflictRepository, retry RetryPolicy, clock ports.Clock, opts ...Option) *ConflictResolver {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = DefaultMaxAttempts
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = DefaultRetryInterval
	}

	return &ConflictResolver{
		states:    states,
		conflicts: conflicts,
		clock:     clock,
		retry:     retry,
		opts:      buildOptions(opts),
	}
}

// RecordVersionConflict saves a pending conflict holding the stored entry and
// the rejected attempt, and stamps its id on err.
func (r *ConflictResolver) RecordVersionConflict(ctx context.Context, sessionID domain.SessionID, key string, err *domain.VersionConflictError) (domain.Conflict, error) {
	competing := make([]domain.StateEntry, 0, 2)
	if err.Current.Accepted() {
		competing = append(competing, err.Current)
	}
	competing = append(competing, err.Attempted)

	conflict := domain.Conflict{
		ID:        domain.ConflictID(r.opts.newID()),
		Key:       key,
		Addresses: []domain.StateAddress{err.Address},
		Competing: competing,
		Strategy:  domain.StrategyConflict,
		SessionID: sessionID,
		Status:    domain.ConflictPending,
		Reason:    fmt.Sprintf("expected version %d, current %d", err.Expected, err.Current.Version),
		CreatedAt: r.clock.Now(),
	}
	if saveErr := r.conflicts.Save(ctx, conflict); saveErr != nil {
		return domain.Conflict{}, fmt.Errorf("save conflict: %w", saveErr)
	}
	err.ConflictID = conflict.ID
	r.emitConflict(ctx, MetricConflictsRecorded, conflict)

	r.opts.logger.WarnContext(ctx, "version conflict recorded",
		append(addressLogAttrs(err.Address),
			slog.String("session_id", string(sessionID)),
			slog.String("conflict_id", string(conflict.ID)),
		)...)
	return conflict, nil
}

func (r *ConflictResolver) Get(ctx context.Context, id domain.ConflictID) (domain.Conflict, error) {
	conflict, err := r.conflicts.GetByID(ctx, id)
	if err != nil {
		return domain.Conflict{}, fmt.Errorf("get conflict by id: %w", err)
	}
	return conflict, nil
}

// List returns conflicts with the given status, or all of them for "".
func (r *ConflictResolver) List(ctx context.Context, status domain.ConflictStatus) ([]domain.Conflict, error) {
	conflicts, err := r.conflicts.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return conflicts, nil
}

// FindPending returns the most recent pending conflict touching address.
func (r *ConflictResolver) FindPending(ctx context.Context, address domain.StateAddress) (domain.Conflict, error) {
	pending, err := r.List(ctx, domain.ConflictPending)
	if err != nil {
		return domain.Conflict{}, err
	}
	for i := len(pending) - 1; i >= 0; i-- {
		if pending[i].HasAddress(address) {
			return pending[i], nil
		}
	}
	return domain.Conflict{}, fmt.Errorf("pending conflict on %s: %w", address, domain.ErrConflictNotFound)
}

// Resolve applies a strategy to the competitors and writes the outcome back to
// every address under one version greater than any input. The write-back is a
// compare-and-swap per address; a concurrent writer makes the round start over
// with the newcomer included.
func (r *ConflictResolver) Resolve(ctx context.Context, req ResolveRequest) (res Resolution, err error) {
	ctx, span := startSpan(ctx, r.opts.tracer, "trafficcop.resolve",
		sessionAttr(req.SessionID),
		keyAttr(req.Key),
		attribute.String("trafficcop.strategy", string(req.Strategy)),
	)
	defer func() { endSpan(span, err) }()

	if !req.Strategy.Valid() {
		return Resolution{}, fmt.Errorf("%w: unknown conflict strategy %q", domain.ErrInvalidArgument, req.Strategy)
	}

	conflict := domain.Conflict{
		Key:       req.Key,
		Addresses: uniqueAddresses(req.Addresses),
		Competing: req.Competing,
		SessionID: req.SessionID,
		Status:    domain.ConflictPending,
		CreatedAt: r.clock.Now(),
	}
	if req.ConflictID != "" {
		conflict, err = r.Get(ctx, req.ConflictID)
		if err != nil {
			return Resolution{}, err
		}
		if !conflict.Pending() {
			return Resolution{}, fmt.Errorf("conflict %s: %w", conflict.ID, domain.ErrConflictResolved)
		}
	}
	if len(conflict.Addresses) == 0 {
		return Resolution{}, fmt.Errorf("%w: resolution needs at least one address", domain.ErrInvalidArgument)
	}
	if conflict.ID == "" {
		conflict.ID = domain.ConflictID(r.opts.newID())
	}
	if conflict.Key == "" {
		conflict.Key = conflict.Addresses[0].Key
	}
	conflict.Strategy = req.Strategy
	span.SetAttributes(attribute.String("trafficcop.conflict_id", string(conflict.ID)))

	operation := func() (Resolution, error) {
		res, err := r.resolveOnce(ctx, conflict, req)
		if err != nil && !errors.Is(err, domain.ErrVersionConflict) {
			return Resolution{}, backoff.Permanent(err)
		}
		return res, err
	}
	res, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.retry.backOff()),
		backoff.WithMaxTries(r.retry.MaxAttempts),
	)
	if err != nil {
		return res, fmt.Errorf("resolve conflict %s: %w", conflict.ID, err)
	}
	return res, nil
}

func (r *ConflictResolver) resolveOnce(ctx context.Context, conflict domain.Conflict, req ResolveRequest) (Resolution, error) {
	current, err := r.currentEntries(ctx, conflict.Addresses)
	if err != nil {
		return Resolution{}, err
	}

	candidates := slices.Clone(conflict.Competing)
	if !req.IgnoreCurrent {
		for _, address := range conflict.Addresses {
			if entry, ok := current[address]; ok {
				candidates = append(candidates, entry)
			}
		}
	}
	candidates = uniqueEntries(candidates)
	if len(candidates) == 0 {
		return Resolution{}, fmt.Errorf("resolve %s: %w", conflict.Key, domain.ErrStateNotFound)
	}
	conflict.Competing = candidates

	ranked := rankOverride(candidates)
	var resolved domain.StateEntry
	switch conflict.Strategy {
	case domain.StrategyConflict:
		if err := r.conflicts.Save(ctx, conflict); err != nil {
			return Resolution{}, fmt.Errorf("save conflict: %w", err)
		}
		r.emitConflict(ctx, MetricConflictsRecorded, conflict)
		r.opts.logger.InfoContext(ctx, "conflict left pending",
			slog.String("conflict_id", string(conflict.ID)),
			slog.String("key", conflict.Key),
			slog.Int("competing", len(candidates)),
		)
		return Resolution{Conflict: conflict}, nil
	case domain.StrategyOverride:
		resolved = ranked[0]
	case domain.StrategyPreserve:
		resolved = preserved(ranked)
		if settled(conflict.Addresses, current, resolved.Value, req.Converge) {
			return r.finish(ctx, conflict, resolved, entriesAt(conflict.Addresses, current), false)
		}
	case domain.StrategyMerge:
		value, err := mergeValues(conflict.Key, ranked)
		if err != nil {
			var unmergeable *domain.UnmergeableError
			if errors.As(err, &unmergeable) {
				conflict.Reason = err.Error()
				if saveErr := r.conflicts.Save(ctx, conflict); saveErr != nil {
					return Resolution{}, errors.Join(err, fmt.Errorf("save conflict: %w", saveErr))
				}
				unmergeable.ConflictID = conflict.ID
				r.emitConflict(ctx, MetricConflictsRecorded, conflict)
			}
			return Resolution{Conflict: conflict}, err
		}
		resolved = ranked[0]
		resolved.Value = value
		resolved.UpdatedAt = r.clock.Now()
	}

	written, err := r.writeBack(ctx, conflict.Addresses, current, candidates, resolved)
	if err != nil {
		return Resolution{}, err
	}
	return r.finish(ctx, conflict, written[0], written, true)
}

func (r *ConflictResolver) finish(ctx context.Context, conflict domain.Conflict, entry domain.StateEntry, entries []domain.StateEntry, written bool) (Resolution, error) {
	resolvedEntry := entry
	conflict.Status = domain.ConflictResolved
	conflict.ResolvedValue = entry.Value
	conflict.ResolvedEntry = &resolvedEntry
	conflict.ResolvedAt = r.clock.Now()
	if err := r.conflicts.Save(ctx, conflict); err != nil {
		return Resolution{}, fmt.Errorf("save conflict: %w", err)
	}
	r.emitConflict(ctx, MetricConflictsResolved, conflict)

	r.opts.logger.InfoContext(ctx, "conflict resolved",
		slog.String("conflict_id", string(conflict.ID)),
		slog.String("key", conflict.Key),
		slog.String("strategy", string(conflict.Strategy)),
		slog.Int64("version", entry.Version),
		slog.Bool("written", written),
	)
	return Resolution{Conflict: conflict, Entry: entry, Entries: entries, Written: written}, nil
}

func (r *ConflictResolver) emitConflict(ctx context.Context, name string, conflict domain.Conflict) {
	metadata := map[string]any{
		"conflict_id": string(conflict.ID),
		"key":         conflict.Key,
		"strategy":    string(conflict.Strategy),
	}
	if conflict.SessionID != "" {
		metadata["session_id"] = string(conflict.SessionID)
	}
	r.opts.emitter.Emit(ctx, CollectMetricsCommand{Type: domain.MetricActivity, Name: name, Value: 1, Metadata: metadata})
}

func (r *ConflictResolver) currentEntries(ctx context.Context, addresses []domain.StateAddress) (map[domain.StateAddress]domain.StateEntry, error) {
	current := make(map[domain.StateAddress]domain.StateEntry, len(addresses))
	for _, address := range addresses {
		entry, err := r.states.Get(ctx, address)
		if errors.Is(err, domain.ErrStateNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get state: %w", err)
		}
		current[address] = entry
	}
	return current, nil
}

// writeBack stores resolved at every address with a single version above every
// input, so all addresses end identical.
func (r *ConflictResolver) writeBack(ctx context.Context, addresses []domain.StateAddress, current map[domain.StateAddress]domain.StateEntry, candidates []domain.StateEntry, resolved domain.StateEntry) ([]domain.StateEntry, error) {
	var top int64
	for _, entry := range candidates {
		top = max(top, entry.Version)
	}
	for _, entry := range current {
		top = max(top, entry.Version)
	}

	written := make([]domain.StateEntry, 0, len(addresses))
	for _, address := range addresses {
		expected := domain.VersionAbsent
		if entry, ok := current[address]; ok {
			expected = entry.Version
		}
		entry, err := r.states.Put(ctx, ports.PutRequest{
			Address:         address,
			Value:           resolved.Value,
			Priority:        resolved.Priority,
			Owner:           resolved.Owner,
			Metadata:        resolved.Metadata,
			ExpectedVersion: expected,
			MinVersion:      top + 1,
			UpdatedAt:       resolved.UpdatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("write back %s: %w", address, err)
		}
		trace.SpanFromContext(ctx).AddEvent("write back",
			trace.WithAttributes(append(addressAttrs(address), attribute.Int64("trafficcop.version", entry.Version))...))
		written = append(written, entry)
	}
	return r.align(ctx, written)
}

// align raises every written entry to the highest version among them. A
// tombstone at one address can carry a version above every live input, and
// that address then lands ahead of the others.
func (r *ConflictResolver) align(ctx context.Context, written []domain.StateEntry) ([]domain.StateEntry, error) {
	var highest int64
	for _, entry := range written {
		highest = max(highest, entry.Version)
	}

	for i, entry := range written {
		if entry.Version == highest {
			continue
		}
		lifted, err := r.states.Put(ctx, ports.PutRequest{
			Address:         entry.Address,
			Value:           entry.Value,
			Priority:        entry.Priority,
			Owner:           entry.Owner,
			Metadata:        entry.Metadata,
			ExpectedVersion: entry.Version,
			MinVersion:      highest,
			UpdatedAt:       entry.UpdatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("align %s: %w", entry.Address, err)
		}
		written[i] = lifted
	}
	return written, nil
}

// rankOverride orders entries best first: latest write, then higher priority,
// then the lexically smaller owner session id, then the higher version.
func rankOverride(entries []domain.StateEntry) []domain.StateEntry {
	ranked := slices.Clone(entries)
	slices.SortStableFunc(ranked, func(a, b domain.StateEntry) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := strings.Compare(string(a.Owner), string(b.Owner)); c != 0 {
			return c
		}
		return cmp.Compare(b.Version, a.Version)
	})
	return ranked
}

// preserved keeps the entry with the lowest stored version. Attempts that were
// never stored only win when nothing else exists.
func preserved(ranked []domain.StateEntry) domain.StateEntry {
	winner := ranked[0]
	found := false
	for _, entry := range ranked {
		if !entry.Accepted() {
			continue
		}
		if !found || entry.Version < winner.Version {
			winner = entry
			found = true
		}
	}
	return winner
}

func settled(addresses []domain.StateAddress, current map[domain.StateAddress]domain.StateEntry, value any, converge bool) bool {
	var version int64
	for i, address := range addresses {
		entry, ok := current[address]
		if !ok || !codec.Equal(entry.Value, value) {
			return false
		}
		if converge && i > 0 && entry.Version != version {
			return false
		}
		version = entry.Version
	}
	return true
}

func entriesAt(addresses []domain.StateAddress, current map[domain.StateAddress]domain.StateEntry) []domain.StateEntry {
	out := make([]domain.StateEntry, 0, len(addresses))
	for _, address := range addresses {
		out = append(out, current[address])
	}
	return out
}

// mergeValues folds structured values from the lowest ranked to the winner, so
// on overlapping fields the winner's value stands. Nested maps merge recursively.
func mergeValues(key string, ranked []domain.StateEntry) (any, error) {
	var types []string
	for _, entry := range ranked {
		if _, ok := entry.Value.(map[string]any); !ok {
			types = append(types, typeName(entry.Value))
		}
	}
	if len(types) > 0 {
		return nil, &domain.UnmergeableError{Key: key, Types: slices.Compact(slices.Sorted(slices.Values(types)))}
	}

	merged := map[string]any{}
	for i := len(ranked) - 1; i >= 0; i-- {
		mergeInto(merged, ranked[i].Value.(map[string]any))
	}
	return merged, nil
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		incoming, isMap := v.(map[string]any)
		existing, wasMap := dst[k].(map[string]any)
		if isMap && wasMap {
			mergeInto(existing, incoming)
			continue
		}
		if isMap {
			fresh := map[string]any{}
			mergeInto(fresh, incoming)
			dst[k] = fresh
			continue
		}
		dst[k] = v
	}
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return reflect.TypeOf(v).String()
}

// uniqueEntries drops repeated stored entries (same address and version).
// Attempts are never stored and are all kept.
func uniqueEntries(entries []domain.StateEntry) []domain.StateEntry {
	type seenKey struct {
		address domain.StateAddress
		version int64
	}
	seen := make(map[seenKey]struct{}, len(entries))
	out := make([]domain.StateEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Accepted() {
			k := seenKey{address: entry.Address, version: entry.Version}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
		}
		out = append(out, entry)
	}
	return out
}

func uniqueAddresses(addresses []domain.StateAddress) []domain.StateAddress {
	seen := make(map[domain.StateAddress]struct{}, len(addresses))
	out := make([]domain.StateAddress, 0, len(addresses))
	for _, address := range addresses {
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}
		out = append(out, address)
	}
	return out
}
