package anchor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"anchorledger/core/events"
	"anchorledger/observability"
	"anchorledger/storage"
)

var pausedKey = []byte(anchorPrefix + "/paused")

// Config wires a Service.
type Config struct {
	Domain  Domain
	// Owner is the only identity allowed to pause and unpause.
	Owner   common.Address
	Limits  Limits
	// Now overrides the clock. Defaults to time.Now.
	Now     func() time.Time
	Emitter events.Emitter
	Logger  *slog.Logger
}

// Service is the single entry point for anchoring. Every mutating call runs
// under one writer lock and commits its staged writes in one batch, so a
// rejected request leaves nonces, windows and records untouched.
type Service struct {
	mu      sync.RWMutex
	db      storage.Database
	domain  Domain
	limits  Limits
	guard   *Guard
	now     func() time.Time
	emitter events.Emitter
	logger  *slog.Logger
	metrics *observability.LedgerMetrics
	tracer  trace.Tracer
}

// NewService restores the persisted pause flag and returns a ready service.
func NewService(db storage.Database, cfg Config) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("anchor: database required")
	}
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("anchor: owner address required")
	}
	if cfg.Domain.Name == "" {
		cfg.Domain.Name = DefaultDomainName
	}
	if cfg.Domain.Version == "" {
		cfg.Domain.Version = DefaultDomainVersion
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.NoopEmitter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Service{
		db:      db,
		domain:  cfg.Domain,
		limits:  cfg.Limits.withDefaults(),
		guard:   NewGuard(cfg.Owner),
		now:     cfg.Now,
		emitter: cfg.Emitter,
		logger:  cfg.Logger.With(slog.String("component", "anchor")),
		metrics: observability.Ledger(),
		tracer:  otel.Tracer("anchorledger/anchor"),
	}
	var paused bool
	if _, err := storage.NewTx(db).KVGet(pausedKey, &paused); err != nil {
		return nil, fmt.Errorf("anchor: load pause flag: %w", err)
	}
	s.guard.set(paused)
	s.metrics.SetPause(paused)
	return s, nil
}

// Domain returns the typed-data domain signatures are checked against.
func (s *Service) Domain() Domain { return s.domain }

// Limits returns the effective rate limits.
func (s *Service) Limits() Limits { return s.limits }

// SchemaVersion tags every emitted event.
func (s *Service) SchemaVersion() uint8 { return SchemaVersion }

// Owner returns the pause authority.
func (s *Service) Owner() common.Address { return s.guard.Owner() }

// Paused reports whether mutating calls are currently rejected.
func (s *Service) Paused() bool { return s.guard.Paused() }

func (s *Service) unixNow() uint64 {
	now := s.now().Unix()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

// Anchor verifies a signed request and records it. The returned ID identifies
// the (user, dataHash) pair; resubmitting an already stored hash with a fresh
// signature consumes nonce and quota and returns the original ID.
func (s *Service) Anchor(ctx context.Context, req Request) (ID, error) {
	_, span := s.tracer.Start(ctx, "anchor.anchor", trace.WithAttributes(
		attribute.String("user", req.User.Hex()),
		attribute.String("action", req.ActionType.String()),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, created, err := s.anchorLocked(req)
	if err != nil {
		s.reject(span, "anchor", req.User, err)
		return ID{}, err
	}
	s.publish(record, created)
	return record.ID(), nil
}

func (s *Service) anchorLocked(req Request) (Record, bool, error) {
	if err := s.guard.RequireNotPaused(); err != nil {
		return Record{}, false, err
	}
	now := s.unixNow()
	if now > req.Deadline {
		return Record{}, false, ErrSignatureExpired
	}
	if req.DataHash == (Hash{}) {
		return Record{}, false, ErrInvalidDataHash
	}
	if !req.ActionType.Valid() {
		return Record{}, false, fmt.Errorf("%w: unknown action type %d", ErrInvalidInput, uint8(req.ActionType))
	}

	tx := storage.NewTx(s.db)
	nonces := NewNonceRegistry(tx)
	nonce, err := nonces.Current(req.User)
	if err != nil {
		return Record{}, false, err
	}
	if err := s.verify(req.User, req.ActionType, req.DataHash, nonce, req.Deadline, req.Signature); err != nil {
		return Record{}, false, err
	}
	if err := NewRateLimiter(tx, s.limits).CheckAndRecord(req.User, now); err != nil {
		return Record{}, false, err
	}
	if err := nonces.Consume(req.User, nonce); err != nil {
		return Record{}, false, err
	}
	record, created, err := NewStore(tx).RecordIfNew(req.User, req.ActionType, req.DataHash, now)
	if err != nil {
		return Record{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Record{}, false, fmt.Errorf("anchor: commit: %w", err)
	}
	return record, created, nil
}

// BatchAnchor applies every item or none. Item i must be signed with
// NonceOf(user)+i; all items share the deadline and one timestamp.
func (s *Service) BatchAnchor(ctx context.Context, req BatchRequest) ([]ID, error) {
	_, span := s.tracer.Start(ctx, "anchor.batch_anchor", trace.WithAttributes(
		attribute.String("user", req.User.Hex()),
		attribute.Int("items", len(req.DataHashes)),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	records, created, err := s.batchLocked(req)
	if err != nil {
		s.reject(span, "batch_anchor", req.User, err)
		return nil, err
	}
	ids := make([]ID, len(records))
	for i, record := range records {
		ids[i] = record.ID()
		s.publish(record, created[i])
	}
	s.metrics.ObserveBatch(len(records))
	return ids, nil
}

func (s *Service) batchLocked(req BatchRequest) ([]Record, []bool, error) {
	if err := s.guard.RequireNotPaused(); err != nil {
		return nil, nil, err
	}
	n := len(req.DataHashes)
	if n == 0 {
		return nil, nil, fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	if len(req.ActionTypes) != n || len(req.Signatures) != n {
		return nil, nil, fmt.Errorf("%w: batch length mismatch (actions=%d hashes=%d signatures=%d)",
			ErrInvalidInput, len(req.ActionTypes), n, len(req.Signatures))
	}
	now := s.unixNow()
	if now > req.Deadline {
		return nil, nil, ErrSignatureExpired
	}

	tx := storage.NewTx(s.db)
	nonces := NewNonceRegistry(tx)
	base, err := nonces.Current(req.User)
	if err != nil {
		return nil, nil, err
	}
	for i := 0; i < n; i++ {
		if req.DataHashes[i] == (Hash{}) {
			return nil, nil, fmt.Errorf("item %d: %w", i, ErrInvalidDataHash)
		}
		if !req.ActionTypes[i].Valid() {
			return nil, nil, fmt.Errorf("item %d: %w: unknown action type %d", i, ErrInvalidInput, uint8(req.ActionTypes[i]))
		}
		nonce := new(uint256.Int).Add(base, uint256.NewInt(uint64(i)))
		if err := s.verify(req.User, req.ActionTypes[i], req.DataHashes[i], nonce, req.Deadline, req.Signatures[i]); err != nil {
			return nil, nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	if err := NewRateLimiter(tx, s.limits).CheckAndRecordN(req.User, now, uint64(n)); err != nil {
		return nil, nil, err
	}

	store := NewStore(tx)
	records := make([]Record, n)
	created := make([]bool, n)
	for i := 0; i < n; i++ {
		nonce := new(uint256.Int).Add(base, uint256.NewInt(uint64(i)))
		if err := nonces.Consume(req.User, nonce); err != nil {
			return nil, nil, fmt.Errorf("item %d: %w", i, err)
		}
		record, isNew, err := store.RecordIfNew(req.User, req.ActionTypes[i], req.DataHashes[i], now)
		if err != nil {
			return nil, nil, fmt.Errorf("item %d: %w", i, err)
		}
		records[i] = record
		created[i] = isNew
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("anchor: commit: %w", err)
	}
	return records, created, nil
}

func (s *Service) verify(user common.Address, action ActionType, dataHash Hash, nonce *uint256.Int, deadline uint64, sig []byte) error {
	msg := Message{ActionType: action, DataHash: dataHash, Nonce: nonce, Deadline: deadline}
	signer, err := Recover(s.domain, msg, sig)
	if err != nil {
		if errors.Is(err, ErrInvalidSignatureFormat) {
			return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
		return err
	}
	if signer != user {
		return fmt.Errorf("%w: signer mismatch", ErrInvalidSignature)
	}
	return nil
}

// publish runs under the writer lock so subscribers observe events in commit
// order.
func (s *Service) publish(record Record, created bool) {
	s.metrics.RecordAnchor(record.ActionType.String(), created)
	s.logger.Info("portfolio anchored",
		slog.String("user", record.User.Hex()),
		slog.String("action", record.ActionType.String()),
		slog.String("dataHash", record.DataHash.Hex()),
		slog.Bool("created", created),
	)
	s.emitter.Emit(events.PortfolioAnchored{
		User:          record.User,
		ActionType:    uint8(record.ActionType),
		Action:        record.ActionType.String(),
		DataHash:      record.DataHash,
		Timestamp:     record.Timestamp,
		SchemaVersion: SchemaVersion,
	})
}

func (s *Service) reject(span trace.Span, operation string, user common.Address, err error) {
	reason := Reason(err)
	s.metrics.RecordRejection(operation, reason)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	level := slog.LevelInfo
	if reason == "internal" {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "anchor rejected",
		slog.String("operation", operation),
		slog.String("user", user.Hex()),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
}

// Pause halts anchoring. Only the owner may call it.
func (s *Service) Pause(caller common.Address) error {
	return s.setPaused(caller, true)
}

// Unpause resumes anchoring with state unchanged from before the pause.
func (s *Service) Unpause(caller common.Address) error {
	return s.setPaused(caller, false)
}

func (s *Service) setPaused(caller common.Address, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	toggle := s.guard.Unpause
	if paused {
		toggle = s.guard.Pause
	}
	if err := toggle(caller); err != nil {
		s.logger.Warn("pause toggle rejected",
			slog.String("caller", caller.Hex()),
			slog.String("reason", Reason(err)),
		)
		return err
	}
	tx := storage.NewTx(s.db)
	if err := tx.KVPut(pausedKey, paused); err != nil {
		s.guard.set(!paused)
		return fmt.Errorf("anchor: stage pause flag: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.guard.set(!paused)
		return fmt.Errorf("anchor: persist pause flag: %w", err)
	}
	s.metrics.SetPause(paused)
	s.logger.Info("pause flag changed", slog.Bool("paused", paused))
	return nil
}

func (s *Service) view() *storage.Tx {
	return storage.NewTx(s.db)
}

// VerifyAnchor reports whether user has anchored dataHash.
func (s *Service) VerifyAnchor(user common.Address, dataHash Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewStore(s.view()).Exists(user, dataHash)
}

// Record loads the stored record for (user, dataHash).
func (s *Service) Record(user common.Address, dataHash Hash) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewStore(s.view()).Get(user, dataHash)
}

// RemainingQuota is the number of anchors user may still submit in the
// current window as of now.
func (s *Service) RemainingQuota(user common.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewRateLimiter(s.view(), s.limits).Remaining(user, s.unixNow())
}

// NextAnchorTime is the earliest unix time the cooldown admits user again, or
// 0 if user never anchored.
func (s *Service) NextAnchorTime(user common.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewRateLimiter(s.view(), s.limits).NextAnchorTime(user)
}

// NonceOf returns the nonce user's next signature must embed.
func (s *Service) NonceOf(user common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewNonceRegistry(s.view()).Current(user)
}

// UserAnchors pages through user's history in insertion order.
func (s *Service) UserAnchors(user common.Address, offset, limit uint64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewStore(s.view()).History(user, offset, limit)
}

// AnchorCount is the total number of distinct anchors for user.
func (s *Service) AnchorCount(user common.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewStore(s.view()).Count(user)
}

// UserStatus is a point-in-time view of a user's ledger state.
type UserStatus struct {
	Nonce          *uint256.Int
	RemainingQuota uint64
	NextAnchorTime uint64
	AnchorCount    uint64
}

// Status collects the per-user reads under one lock.
func (s *Service) Status(user common.Address) (UserStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := s.view()
	nonce, err := NewNonceRegistry(view).Current(user)
	if err != nil {
		return UserStatus{}, err
	}
	limiter := NewRateLimiter(view, s.limits)
	window, exists, err := limiter.Load(user)
	if err != nil {
		return UserStatus{}, err
	}
	count, err := NewStore(view).Count(user)
	if err != nil {
		return UserStatus{}, err
	}
	return UserStatus{
		Nonce:          nonce,
		RemainingQuota: window.Remaining(s.limits, exists, s.unixNow()),
		NextAnchorTime: window.NextAnchorTime(s.limits),
		AnchorCount:    count,
	}, nil
}
