// Package orderstore keeps dev-backend orders in a byte provider.
//
// Keys:
//
//	orders:<ns>:index    - wire index of live order ids, creation order
//	orders:<ns>:o:<id>   - wire record holding one codec-encoded order
//
// Every record write bumps the order's generation. Update takes the generation
// returned by Get and fails with ErrConflict if another writer got there first.
package orderstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/unkn0wn-root/querysync"
	"github.com/unkn0wn-root/querysync/codec"
	gen "github.com/unkn0wn-root/querysync/genstore"
	"github.com/unkn0wn-root/querysync/internal/coffee"
	"github.com/unkn0wn-root/querysync/internal/wire"
	pr "github.com/unkn0wn-root/querysync/provider"
)

const idPrefix = "order-"

var (
	ErrNotFound = errors.New("orderstore: order not found")
	ErrConflict = errors.New("orderstore: generation conflict")
	ErrRejected = errors.New("orderstore: provider rejected write")
)

type Options struct {
	Namespace string // required
	Provider  pr.Provider
	Codec     codec.Codec[coffee.Order] // nil => JSON
	GenStore  gen.GenStore              // nil => LocalGenStore owned by the store
	Clock     clockwork.Clock
	Logger    querysync.Logger
}

type Store struct {
	ns     string
	p      pr.Provider
	c      codec.Codec[coffee.Order]
	gen    gen.GenStore
	ownGen bool
	clock  clockwork.Clock
	log    querysync.Logger

	// mu serializes index changes, id allocation and record updates.
	mu     sync.Mutex
	nextID uint64
}

// New opens the store and resumes id allocation after the highest stored id.
func New(ctx context.Context, opts Options) (*Store, error) {
	const op = "orderstore.New"

	if opts.Namespace == "" {
		return nil, fmt.Errorf("%s: namespace is required", op)
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("%s: provider is required", op)
	}
	s := &Store{
		ns:    opts.Namespace,
		p:     opts.Provider,
		c:     opts.Codec,
		gen:   opts.GenStore,
		clock: opts.Clock,
		log:   opts.Logger,
	}
	if s.c == nil {
		s.c = codec.JSONCodec[coffee.Order]{}
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.log == nil {
		s.log = querysync.NopLogger{}
	}
	if s.gen == nil {
		s.gen = gen.NewLocalGenStore(0, 0, gen.WithClock(s.clock))
		s.ownGen = true
	}

	ids, err := s.readIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, id := range ids {
		if n, ok := parseID(id); ok && n > s.nextID {
			s.nextID = n
		}
	}
	return s, nil
}

// Close releases the generation store if the store created it. The provider
// belongs to the caller.
func (s *Store) Close(ctx context.Context) error {
	if s.ownGen {
		return s.gen.Close(ctx)
	}
	return nil
}

// Create stores a new QUEUED order and returns it.
func (s *Store) Create(ctx context.Context, menuItemName string) (coffee.Order, error) {
	const op = "orderstore.Create"

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.readIndex(ctx)
	if err != nil {
		return coffee.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	s.nextID++
	o := coffee.Order{
		OrderID:      idPrefix + strconv.FormatUint(s.nextID, 10),
		MenuItemName: menuItemName,
		Status:       coffee.StatusQueued,
	}
	g, err := s.gen.Bump(ctx, s.recordKey(o.OrderID))
	if err != nil {
		return coffee.Order{}, fmt.Errorf("%s: bump gen: %w", op, err)
	}
	if err := s.writeRecord(ctx, o, g); err != nil {
		return coffee.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.writeIndex(ctx, append(ids, o.OrderID)); err != nil {
		// the record is unreachable without its index entry
		_ = s.p.Del(ctx, s.recordKey(o.OrderID))
		return coffee.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

// Get returns the order and the generation to pass to Update.
func (s *Store) Get(ctx context.Context, id string) (coffee.Order, uint64, error) {
	const op = "orderstore.Get"

	k := s.recordKey(id)
	cur, err := s.gen.Snapshot(ctx, k)
	if err != nil {
		return coffee.Order{}, 0, fmt.Errorf("%s: snapshot: %w", op, err)
	}
	o, rec, err := s.readRecord(ctx, id)
	if err != nil {
		return coffee.Order{}, 0, fmt.Errorf("%s: %w", op, err)
	}
	if rec.Gen < cur {
		// a bumped write never landed; what we have is the last one that did
		s.log.Warn("order record behind its generation", querysync.Fields{"id": id, "record_gen": rec.Gen, "gen": cur})
	}
	return o, cur, nil
}

// List returns every order in creation order. Index entries whose record is
// gone are skipped.
func (s *Store) List(ctx context.Context) ([]coffee.Order, error) {
	const op = "orderstore.List"

	ids, err := s.readIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	gens, err := s.gen.SnapshotMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%s: snapshot: %w", op, err)
	}
	out := make([]coffee.Order, 0, len(ids))
	for i, id := range ids {
		o, rec, err := s.readRecord(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.log.Warn("index entry without record", querysync.Fields{"id": id})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if cur := gens[keys[i]]; rec.Gen < cur {
			s.log.Warn("order record behind its generation", querysync.Fields{"id": id, "record_gen": rec.Gen, "gen": cur})
		}
		out = append(out, o)
	}
	return out, nil
}

// Update writes o if the order's generation still equals gen.
func (s *Store) Update(ctx context.Context, o coffee.Order, g uint64) (uint64, error) {
	const op = "orderstore.Update"

	// held across check, bump and write so a concurrent Delete cannot be undone
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.readIndex(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if !slices.Contains(ids, o.OrderID) {
		return 0, fmt.Errorf("%s: %s: %w", op, o.OrderID, ErrNotFound)
	}
	k := s.recordKey(o.OrderID)
	if _, _, err := s.readRecord(ctx, o.OrderID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	next, ok, err := s.gen.CompareAndBump(ctx, k, g)
	if err != nil {
		return 0, fmt.Errorf("%s: bump gen: %w", op, err)
	}
	if !ok {
		return next, fmt.Errorf("%s: %s: %w", op, o.OrderID, ErrConflict)
	}
	if err := s.writeRecord(ctx, o, next); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return next, nil
}

// Delete removes the order. Deleting a missing order returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	const op = "orderstore.Delete"

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.readIndex(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	kept := ids[:0]
	found := false
	for _, x := range ids {
		if x == id {
			found = true
			continue
		}
		kept = append(kept, x)
	}
	if !found {
		return fmt.Errorf("%s: %s: %w", op, id, ErrNotFound)
	}
	if err := s.writeIndex(ctx, kept); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	k := s.recordKey(id)
	if err := s.p.Del(ctx, k); err != nil {
		s.log.Warn("record delete failed", querysync.Fields{"id": id, "err": err})
	}
	// ids are never reused; writers still holding a generation now miss
	if err := s.gen.Forget(ctx, k); err != nil {
		s.log.Warn("gen forget after delete failed", querysync.Fields{"id": id, "err": err})
	}
	return nil
}

func (s *Store) indexKey() string          { return "orders:" + s.ns + ":index" }
func (s *Store) recordKey(id string) string { return "orders:" + s.ns + ":o:" + id }

func (s *Store) readIndex(ctx context.Context) ([]string, error) {
	b, ok, err := s.p.Get(ctx, s.indexKey())
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if !ok {
		return nil, nil
	}
	ids, err := wire.DecodeIndex(b)
	if err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return ids, nil
}

func (s *Store) writeIndex(ctx context.Context, ids []string) error {
	b, err := wire.EncodeIndex(ids)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return s.set(ctx, s.indexKey(), b)
}

func (s *Store) readRecord(ctx context.Context, id string) (coffee.Order, wire.Record, error) {
	k := s.recordKey(id)
	b, ok, err := s.p.Get(ctx, k)
	if err != nil {
		return coffee.Order{}, wire.Record{}, fmt.Errorf("read %s: %w", id, err)
	}
	if !ok {
		return coffee.Order{}, wire.Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	rec, err := wire.DecodeRecord(b)
	if err != nil {
		_ = s.p.Del(ctx, k)
		s.log.Error("corrupt order record dropped", querysync.Fields{"id": id, "err": err})
		return coffee.Order{}, wire.Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	o, err := s.c.Decode(rec.Payload)
	if err != nil {
		return coffee.Order{}, wire.Record{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return o, rec, nil
}

func (s *Store) writeRecord(ctx context.Context, o coffee.Order, g uint64) error {
	payload, err := s.c.Encode(o)
	if err != nil {
		return fmt.Errorf("encode %s: %w", o.OrderID, err)
	}
	b := wire.EncodeRecord(wire.Record{Gen: g, UpdatedAt: s.clock.Now(), Payload: payload})
	return s.set(ctx, s.recordKey(o.OrderID), b)
}

func (s *Store) set(ctx context.Context, k string, b []byte) error {
	ok, err := s.p.Set(ctx, k, b, int64(len(b)), 0)
	if err != nil {
		return fmt.Errorf("write %s: %w", k, err)
	}
	if !ok {
		return fmt.Errorf("write %s: %w", k, ErrRejected)
	}
	return nil
}

func parseID(id string) (uint64, bool) {
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	return n, err == nil
}

// ParseID reports whether id has the order-<n> form.
func ParseID(id string) bool {
	_, ok := parseID(id)
	return ok
}
