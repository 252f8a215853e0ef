// Package mongo is the MongoDB journal backend.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/lugondev/go-vaultswap/internal/config"
	"github.com/lugondev/go-vaultswap/internal/storage"
)

func init() {
	storage.RegisterFactory(storage.DatabaseTypeMongoDB, func(ctx context.Context, cfg *config.DatabaseConfig) (storage.Repository, error) {
		repo, err := NewMongoRepository(ctx, &cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create mongo repository: %w", err)
		}
		return repo, nil
	})
}

// Collection names.
const (
	collAccounts       = "accounts"
	collTransactions   = "transactions"
	collInstructions   = "instructions"
	collEvents         = "events"
	collBalanceRecords = "balance_records"
)

func unique(key string) mongo.IndexModel {
	return mongo.IndexModel{Keys: bson.D{{Key: key, Value: 1}}, Options: options.Index().SetUnique(true)}
}

func ascending(keys ...string) mongo.IndexModel {
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: 1})
	}
	return mongo.IndexModel{Keys: d}
}

func descending(key string) mongo.IndexModel {
	return mongo.IndexModel{Keys: bson.D{{Key: key, Value: -1}}}
}

// indexes lists the indexes each collection needs for the repository queries.
var indexes = map[string][]mongo.IndexModel{
	collAccounts:       {unique("pubkey"), ascending("owner"), descending("slot")},
	collTransactions:   {unique("signature"), descending("slot"), ascending("account_keys")},
	collInstructions:   {ascending("signature", "instruction_index"), ascending("program_id")},
	collEvents:         {ascending("signature"), ascending("program_id"), ascending("event_name"), descending("slot")},
	collBalanceRecords: {unique("address"), ascending("owner"), ascending("mint")},
}

type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
	atomic   bool

	accounts       *mongoAccountRepository
	transactions   *mongoTransactionRepository
	instructions   *mongoInstructionRepository
	events         *mongoEventRepository
	balanceRecords *mongoBalanceRecordRepository
}

func NewMongoRepository(ctx context.Context, cfg *config.MongoDBConfig) (*MongoRepository, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetConnectTimeout(time.Duration(cfg.ConnectTimeout) * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}

	return &MongoRepository{
		client:         client,
		database:       db,
		atomic:         cfg.Transactions,
		accounts:       &mongoAccountRepository{collection: db.Collection(collAccounts)},
		transactions:   &mongoTransactionRepository{collection: db.Collection(collTransactions)},
		instructions:   &mongoInstructionRepository{collection: db.Collection(collInstructions)},
		events:         &mongoEventRepository{collection: db.Collection(collEvents)},
		balanceRecords: &mongoBalanceRecordRepository{collection: db.Collection(collBalanceRecords)},
	}, nil
}

func (r *MongoRepository) Accounts() storage.AccountRepository { return r.accounts }
func (r *MongoRepository) Transactions() storage.TransactionRepository { return r.transactions }
func (r *MongoRepository) Instructions() storage.InstructionRepository { return r.instructions }
func (r *MongoRepository) Events() storage.EventRepository { return r.events }
func (r *MongoRepository) BalanceRecords() storage.BalanceRecordRepository { return r.balanceRecords }

// WithTransaction runs fn inside a session transaction when transactions are
// enabled. Otherwise fn writes directly and a failure keeps earlier writes.
func (r *MongoRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo storage.Repository) error) error {
	if !r.atomic {
		return fn(ctx, r)
	}
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc, r)
	})
	return err
}

func (r *MongoRepository) Close() error {
	if r.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}
