package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/contest"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/events"
	"github.com/rs/zerolog"
)

// DeliveredSet is the durable set of pair keys whose balloon was delivered.
type DeliveredSet interface {
	Load(ctx context.Context) ([]string, error)
	Add(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Listener receives a delivered event after the state change is committed.
// Implementations must not block.
type Listener interface {
	Delivered(event events.DeliveredEvent)
}

// ClearListener is implemented by listeners that also want to know when the
// delivered set was emptied locally, e.g. to tell peer instances.
type ClearListener interface {
	Cleared()
}

type ListenerFunc func(event events.DeliveredEvent)

func (f ListenerFunc) Delivered(event events.DeliveredEvent) { f(event) }

type Options struct {
	Set      DeliveredSet
	Listener Listener
	// RecentLimit caps the finished records on the board. Zero selects
	// DefaultRecentLimit.
	RecentLimit int
	Now         func() time.Time
	Logger      zerolog.Logger
}

// Store holds the current derivation and applies mutations on it. Snapshot
// application and mutations are serialized.
type Store struct {
	mu sync.Mutex

	set         DeliveredSet
	listener    Listener
	recentLimit int
	now         func() time.Time
	logger      zerolog.Logger

	keys     KeySet
	snapshot *contest.Snapshot
	records  []Record
	index    map[string]int
	seq      uint64

	observers []func(Board)

	// board fan-out, guarded by notifyMu
	notifyMu  sync.Mutex
	notifying bool
	latest    Board
	latestSeq uint64
	sentSeq   uint64
}

func NewStore(opts Options) *Store {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = DefaultRecentLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		set:         opts.Set,
		listener:    opts.Listener,
		recentLimit: opts.RecentLimit,
		now:         opts.Now,
		logger:      opts.Logger.With().Str("component", "delivery-store").Logger(),
		keys:        NewKeySet(),
		records:     make([]Record, 0),
		index:       make(map[string]int),
	}
}

// OnChange registers fn to receive the board after every change. Boards reach
// observers in commit order; when changes pile up while observers run, only
// the newest board is passed on. Observers run outside the store lock, may
// call back into the store, and must not block.
func (s *Store) OnChange(fn func(Board)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Load reads the delivered set. It is called once at startup.
func (s *Store) Load(ctx context.Context) error {
	keys, err := s.set.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load delivered set: %w", err)
	}

	s.mu.Lock()
	s.keys = NewKeySet(keys...)
	s.rederiveLocked()
	s.mu.Unlock()

	s.logger.Info().Int("delivered", len(keys)).Msg("Delivered set loaded")
	return nil
}

// Apply replaces the current records with the derivation of snapshot.
func (s *Store) Apply(snapshot *contest.Snapshot) []Record {
	s.mu.Lock()
	s.snapshot = snapshot
	s.rederiveLocked()
	out := s.copyLocked()
	seq, board := s.commitLocked()
	s.mu.Unlock()

	s.logger.Debug().
		Int("records", len(out)).
		Int("pending", len(board.Pending)).
		Msg("Snapshot applied")

	s.publish(seq, board)
	return out
}

// MarkDelivered records that the balloon for id reached its team. The key is
// written to the delivered set before the record changes, so a failed write
// leaves the store untouched. Unknown ids are ignored and reported with
// ok=false. Already finished records are returned unchanged.
func (s *Store) MarkDelivered(ctx context.Context, id string) (Record, bool, error) {
	s.mu.Lock()
	i, found := s.index[id]
	if !found {
		s.mu.Unlock()
		return Record{}, false, nil
	}
	rec := s.records[i]
	if rec.Status.Done() {
		s.mu.Unlock()
		return rec, true, nil
	}

	key := rec.Key()
	if err := s.set.Add(ctx, key); err != nil {
		s.mu.Unlock()
		return Record{}, true, fmt.Errorf("failed to persist delivered key %s: %w", key, err)
	}
	s.keys.Add(key)

	rec.Status = StatusDelivered
	rec.DeliveredAt = s.now().UTC().Format(time.RFC3339)
	s.records[i] = rec

	seq, board := s.commitLocked()
	s.mu.Unlock()

	s.logger.Info().
		Str("deliveryId", rec.ID).
		Str("teamId", rec.TeamID).
		Str("problemId", rec.ProblemID).
		Msg("Balloon delivered")

	if s.listener != nil {
		s.listener.Delivered(rec.Event())
	}
	s.publish(seq, board)
	return rec, true, nil
}

// ApplyRemoteDelivered merges a key delivered by another instance. The key is
// already durable, so it is neither persisted nor published again.
func (s *Store) ApplyRemoteDelivered(key, deliveredAt string) bool {
	s.mu.Lock()
	if s.keys.Has(key) {
		s.mu.Unlock()
		return false
	}
	s.keys.Add(key)

	if deliveredAt == "" {
		deliveredAt = s.now().UTC().Format(time.RFC3339)
	}
	for i, rec := range s.records {
		if rec.Key() == key && rec.Status.Open() {
			rec.Status = StatusDelivered
			rec.DeliveredAt = deliveredAt
			s.records[i] = rec
		}
	}
	seq, board := s.commitLocked()
	s.mu.Unlock()

	s.logger.Debug().Str("key", key).Msg("Remote delivery merged")
	s.publish(seq, board)
	return true
}

// Clear empties the delivered set and re-derives every record as pending.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if err := s.set.Clear(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to clear delivered set: %w", err)
	}
	s.keys = NewKeySet()
	s.rederiveLocked()
	seq, board := s.commitLocked()
	s.mu.Unlock()

	s.logger.Warn().Msg("Delivered set cleared")
	if cl, ok := s.listener.(ClearListener); ok {
		cl.Cleared()
	}
	s.publish(seq, board)
	return nil
}

// ApplyRemoteCleared drops every delivered key after another instance
// cleared the shared set. The set itself is not touched.
func (s *Store) ApplyRemoteCleared() {
	s.mu.Lock()
	s.keys = NewKeySet()
	s.rederiveLocked()
	seq, board := s.commitLocked()
	s.mu.Unlock()

	s.logger.Warn().Msg("Delivered set cleared by peer")
	s.publish(seq, board)
}

func (s *Store) Deliveries() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) Board() Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Partition(s.records, s.recentLimit)
}

func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// HasData reports whether a complete snapshot has been applied.
func (s *Store) HasData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Complete()
}

func (s *Store) rederiveLocked() {
	s.records = Derive(s.snapshot, s.keys)
	s.index = make(map[string]int, len(s.records))
	for i, rec := range s.records {
		s.index[rec.ID] = i
	}
}

func (s *Store) copyLocked() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// commitLocked stamps the current state with the next sequence number.
func (s *Store) commitLocked() (uint64, Board) {
	s.seq++
	return s.seq, Partition(s.records, s.recentLimit)
}

// publish hands board to the observers unless a newer one was already
// handed over. A single caller at a time runs the observers; boards
// committed meanwhile are picked up by that caller before it returns.
func (s *Store) publish(seq uint64, board Board) {
	s.notifyMu.Lock()
	if seq > s.latestSeq {
		s.latest, s.latestSeq = board, seq
	}
	if s.notifying {
		s.notifyMu.Unlock()
		return
	}
	s.notifying = true

	for s.sentSeq < s.latestSeq {
		next := s.latest
		s.sentSeq = s.latestSeq
		s.notifyMu.Unlock()

		s.mu.Lock()
		observers := s.observers
		s.mu.Unlock()
		for _, fn := range observers {
			fn(next)
		}

		s.notifyMu.Lock()
	}
	s.notifying = false
	s.notifyMu.Unlock()
}
