package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

const (
	collSubscriptions = "subscriptions"
	collTokenWatches  = "token_watches"
	collUTXOs         = "utxos"
	collAuthorized    = "authorized_chats"
	collAccessCodes   = "access_codes"
	collPaidSubs      = "paid_subscriptions"
	collState         = "state"
	collSeenContracts = "seen_contracts"
)

var (
	ErrDuplicateSubscription = errors.New("chat already tracks this address")
	ErrDuplicateIdentity     = errors.New("chat already tracks this identity under another address form")
	ErrDuplicateWatch        = errors.New("chat already watches this contract")
	ErrWalletLimit           = errors.New("wallet limit reached for this chat")
	ErrNotFound              = errors.New("not found")
	ErrCodeUnknown           = errors.New("unknown access code")
	ErrCodeExpired           = errors.New("access code expired")
	ErrCodeUsed              = errors.New("access code already redeemed")
)

// writer is the durable half of the store. The cache is authoritative for
// reads within a tick; every mutation fans out through the writer. All
// writes are natural-key upserts so a replayed tick re-applies them
// idempotently.
type writer interface {
	upsert(ctx context.Context, coll string, filter, doc interface{}) error
	remove(ctx context.Context, coll string, filter interface{}) error
}

type mongoWriter struct {
	db *mongo.Database
}

func (w *mongoWriter) upsert(ctx context.Context, coll string, filter, doc interface{}) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := w.db.Collection(coll).ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("upsert into %s failed: %w", coll, err)
	}
	return nil
}

func (w *mongoWriter) remove(ctx context.Context, coll string, filter interface{}) error {
	if _, err := w.db.Collection(coll).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("delete from %s failed: %w", coll, err)
	}
	return nil
}

// memoryWriter backs the store in tests; mutations stay cache-only.
type memoryWriter struct{}

func (memoryWriter) upsert(context.Context, string, interface{}, interface{}) error { return nil }
func (memoryWriter) remove(context.Context, string, interface{}) error              { return nil }

// Store keeps every collection fully cached in memory and writes through to
// the document store on each mutation. Reads never block on I/O.
type Store struct {
	mu sync.RWMutex

	subs       map[string]*models.Subscription
	watches    map[string]*models.TokenWatch
	utxos      map[string]*models.StoredUTXO
	authorized map[int64]*models.AuthorizedChat
	paid       map[int64]*models.PaidSubscription
	codes      map[string]*models.AccessCode
	state      map[string]string
	seen       map[string]map[string]struct{}

	w         writer
	appLogger *logger.Logger
}

func newEmpty(w writer, appLogger *logger.Logger) *Store {
	return &Store{
		subs:       make(map[string]*models.Subscription),
		watches:    make(map[string]*models.TokenWatch),
		utxos:      make(map[string]*models.StoredUTXO),
		authorized: make(map[int64]*models.AuthorizedChat),
		paid:       make(map[int64]*models.PaidSubscription),
		codes:      make(map[string]*models.AccessCode),
		state:      make(map[string]string),
		seen:       make(map[string]map[string]struct{}),
		w:          w,
		appLogger:  appLogger,
	}
}

// New connects the store to a Mongo database, enforces the index contract
// and hydrates the full cache. A failure here is fatal at startup.
func New(ctx context.Context, db *mongo.Database, appLogger *logger.Logger) (*Store, error) {
	s := newEmpty(&mongoWriter{db: db}, appLogger)
	if err := ensureIndexes(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}
	if err := s.hydrate(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to hydrate store cache: %w", err)
	}
	appLogger.Info("Store cache hydrated",
		"subscriptions", len(s.subs),
		"tokenWatches", len(s.watches),
		"utxos", len(s.utxos),
		"authorizedChats", len(s.authorized))
	return s, nil
}

// NewMemory builds a cache-only store. Used by tests and by nothing else.
func NewMemory(appLogger *logger.Logger) *Store {
	return newEmpty(memoryWriter{}, appLogger)
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)
	sparse := options.Index().SetUnique(true).SetSparse(true)

	indexes := map[string][]mongo.IndexModel{
		collSubscriptions: {
			{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "address", Value: 1}}, Options: unique},
		},
		collTokenWatches: {
			{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "contract", Value: 1}}, Options: unique},
		},
		collUTXOs: {
			{Keys: bson.D{{Key: "txid", Value: 1}, {Key: "vout", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "address", Value: 1}}},
		},
		collAccessCodes: {
			{Keys: bson.D{{Key: "fundingTx", Value: 1}}, Options: sparse},
		},
	}
	for coll, idxModels := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, idxModels); err != nil {
			return fmt.Errorf("index creation on %s failed: %w", coll, err)
		}
	}
	return nil
}

func loadAll[T any](ctx context.Context, db *mongo.Database, coll string, each func(*T)) error {
	cursor, err := db.Collection(coll).Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("find on %s failed: %w", coll, err)
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var doc T
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("decode from %s failed: %w", coll, err)
		}
		each(&doc)
	}
	return cursor.Err()
}

func (s *Store) hydrate(ctx context.Context, db *mongo.Database) error {
	if err := loadAll(ctx, db, collSubscriptions, func(d *models.Subscription) { s.subs[d.ID] = d }); err != nil {
		return err
	}
	if err := loadAll(ctx, db, collTokenWatches, func(d *models.TokenWatch) { s.watches[d.ID] = d }); err != nil {
		return err
	}
	if err := loadAll(ctx, db, collUTXOs, func(d *models.StoredUTXO) { s.utxos[d.Key()] = d }); err != nil {
		return err
	}
	if err := loadAll(ctx, db, collAuthorized, func(d *models.AuthorizedChat) { s.authorized[d.ChatID] = d }); err != nil {
		return err
	}
	if err := loadAll(ctx, db, collPaidSubs, func(d *models.PaidSubscription) { s.paid[d.ChatID] = d }); err != nil {
		return err
	}
	if err := loadAll(ctx, db, collAccessCodes, func(d *models.AccessCode) { s.codes[d.Code] = d }); err != nil {
		return err
	}
	if err := loadAll(ctx, db, collState, func(d *models.StateEntry) { s.state[d.Key] = d.Value }); err != nil {
		return err
	}
	return loadAll(ctx, db, collSeenContracts, func(d *models.SeenContracts) {
		set := make(map[string]struct{}, len(d.Contracts))
		for _, c := range d.Contracts {
			set[c] = struct{}{}
		}
		s.seen[d.Address] = set
	})
}

// SeedAccessCode inserts a code created by the external payment pipeline.
// Exposed for the admin surface and tests.
func (s *Store) SeedAccessCode(ctx context.Context, code *models.AccessCode) error {
	s.mu.Lock()
	s.codes[code.Code] = code
	s.mu.Unlock()
	return s.w.upsert(ctx, collAccessCodes, bson.M{"_id": code.Code}, code)
}

func nowUTC() time.Time { return time.Now().UTC() }
