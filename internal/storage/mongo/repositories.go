package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lugondev/go-vaultswap/internal/storage"
)

// pageOptions applies limit and offset; a non-positive limit means no limit.
func pageOptions(limit, offset int) *options.FindOptions {
	opts := options.Find().SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func findOne[T any](ctx context.Context, collection *mongo.Collection, filter bson.M) (*T, error) {
	var item T
	err := collection.FindOne(ctx, filter).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func findMany[T any](ctx context.Context, collection *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]*T, error) {
	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []*T
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// upsertMany replaces documents matched by key in one bulk write.
func upsertMany[T any](ctx context.Context, collection *mongo.Collection, items []*T, key func(*T) bson.M) error {
	if len(items) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(items))
	for _, item := range items {
		model := mongo.NewUpdateOneModel().SetFilter(key(item)).SetUpdate(bson.M{"$set": item}).SetUpsert(true)
		models = append(models, model)
	}

	_, err := collection.BulkWrite(ctx, models)
	return err
}

// insertMany appends documents that are never updated in place.
func insertMany[T any](ctx context.Context, collection *mongo.Collection, items []*T) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]any, len(items))
	for i, item := range items {
		docs[i] = item
	}
	_, err := collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

type mongoAccountRepository struct {
	collection *mongo.Collection
}

func accountKey(account *storage.AccountModel) bson.M {
	return bson.M{"pubkey": account.Pubkey}
}

func (r *mongoAccountRepository) Save(ctx context.Context, account *storage.AccountModel) error {
	return r.SaveBatch(ctx, []*storage.AccountModel{account})
}

func (r *mongoAccountRepository) SaveBatch(ctx context.Context, accounts []*storage.AccountModel) error {
	return upsertMany(ctx, r.collection, accounts, accountKey)
}

func (r *mongoAccountRepository) FindByPubkey(ctx context.Context, pubkey string) (*storage.AccountModel, error) {
	return findOne[storage.AccountModel](ctx, r.collection, bson.M{"pubkey": pubkey})
}

func (r *mongoAccountRepository) FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*storage.AccountModel, error) {
	opts := pageOptions(limit, offset).SetSort(bson.D{{Key: "slot", Value: -1}})
	return findMany[storage.AccountModel](ctx, r.collection, bson.M{"owner": owner}, opts)
}

func (r *mongoAccountRepository) FindAll(ctx context.Context) ([]*storage.AccountModel, error) {
	opts := options.Find().SetSort(bson.D{{Key: "pubkey", Value: 1}})
	return findMany[storage.AccountModel](ctx, r.collection, bson.M{}, opts)
}

func (r *mongoAccountRepository) Delete(ctx context.Context, pubkey string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"pubkey": pubkey})
	return err
}

type mongoTransactionRepository struct {
	collection *mongo.Collection
}

func (r *mongoTransactionRepository) Save(ctx context.Context, tx *storage.TransactionModel) error {
	opts := options.Update().SetUpsert(true)
	filter := bson.M{"signature": tx.Signature}
	update := bson.M{"$set": tx}
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

func (r *mongoTransactionRepository) FindBySignature(ctx context.Context, signature string) (*storage.TransactionModel, error) {
	return findOne[storage.TransactionModel](ctx, r.collection, bson.M{"signature": signature})
}

func (r *mongoTransactionRepository) FindByAccountKey(ctx context.Context, accountKey string, limit int, offset int) ([]*storage.TransactionModel, error) {
	opts := pageOptions(limit, offset).SetSort(bson.D{{Key: "slot", Value: -1}})
	return findMany[storage.TransactionModel](ctx, r.collection, bson.M{"account_keys": accountKey}, opts)
}

func (r *mongoTransactionRepository) FindRecent(ctx context.Context, limit int) ([]*storage.TransactionModel, error) {
	opts := pageOptions(limit, 0).SetSort(bson.D{{Key: "slot", Value: -1}})
	return findMany[storage.TransactionModel](ctx, r.collection, bson.M{}, opts)
}

func (r *mongoTransactionRepository) LatestSlot(ctx context.Context) (uint64, error) {
	latest, err := r.FindRecent(ctx, 1)
	if err != nil || len(latest) == 0 {
		return 0, err
	}
	return latest[0].Slot, nil
}

type mongoInstructionRepository struct {
	collection *mongo.Collection
}

func (r *mongoInstructionRepository) SaveBatch(ctx context.Context, instructions []*storage.InstructionModel) error {
	return insertMany(ctx, r.collection, instructions)
}

func (r *mongoInstructionRepository) FindBySignature(ctx context.Context, signature string) ([]*storage.InstructionModel, error) {
	opts := options.Find().SetSort(bson.D{{Key: "instruction_index", Value: 1}})
	return findMany[storage.InstructionModel](ctx, r.collection, bson.M{"signature": signature}, opts)
}

func (r *mongoInstructionRepository) FindByProgramID(ctx context.Context, programID string, limit int, offset int) ([]*storage.InstructionModel, error) {
	opts := pageOptions(limit, offset).SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findMany[storage.InstructionModel](ctx, r.collection, bson.M{"program_id": programID}, opts)
}

type mongoEventRepository struct {
	collection *mongo.Collection
}

func (r *mongoEventRepository) Save(ctx context.Context, event *storage.EventModel) error {
	_, err := r.collection.InsertOne(ctx, event)
	return err
}

func (r *mongoEventRepository) SaveBatch(ctx context.Context, events []*storage.EventModel) error {
	return insertMany(ctx, r.collection, events)
}

func (r *mongoEventRepository) FindBySignature(ctx context.Context, signature string) ([]*storage.EventModel, error) {
	return findMany[storage.EventModel](ctx, r.collection, bson.M{"signature": signature}, options.Find())
}

func (r *mongoEventRepository) FindByProgramID(ctx context.Context, programID string, limit int, offset int) ([]*storage.EventModel, error) {
	opts := pageOptions(limit, offset).SetSort(bson.D{{Key: "slot", Value: -1}})
	return findMany[storage.EventModel](ctx, r.collection, bson.M{"program_id": programID}, opts)
}

func (r *mongoEventRepository) FindByEventName(ctx context.Context, eventName string, limit int, offset int) ([]*storage.EventModel, error) {
	opts := pageOptions(limit, offset).SetSort(bson.D{{Key: "slot", Value: -1}})
	return findMany[storage.EventModel](ctx, r.collection, bson.M{"event_name": eventName}, opts)
}

type mongoBalanceRecordRepository struct {
	collection *mongo.Collection
}

func balanceRecordKey(record *storage.BalanceRecordModel) bson.M {
	return bson.M{"address": record.Address}
}

func (r *mongoBalanceRecordRepository) Save(ctx context.Context, record *storage.BalanceRecordModel) error {
	return r.SaveBatch(ctx, []*storage.BalanceRecordModel{record})
}

func (r *mongoBalanceRecordRepository) SaveBatch(ctx context.Context, records []*storage.BalanceRecordModel) error {
	return upsertMany(ctx, r.collection, records, balanceRecordKey)
}

func (r *mongoBalanceRecordRepository) FindByAddress(ctx context.Context, address string) (*storage.BalanceRecordModel, error) {
	return findOne[storage.BalanceRecordModel](ctx, r.collection, bson.M{"address": address})
}

func (r *mongoBalanceRecordRepository) FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*storage.BalanceRecordModel, error) {
	opts := pageOptions(limit, offset).SetSort(bson.D{{Key: "address", Value: 1}})
	return findMany[storage.BalanceRecordModel](ctx, r.collection, bson.M{"owner": owner}, opts)
}

func (r *mongoBalanceRecordRepository) FindByMint(ctx context.Context, mint string, limit int, offset int) ([]*storage.BalanceRecordModel, error) {
	opts := pageOptions(limit, offset).SetSort(bson.D{{Key: "address", Value: 1}})
	return findMany[storage.BalanceRecordModel](ctx, r.collection, bson.M{"mint": mint}, opts)
}

func (r *mongoBalanceRecordRepository) Delete(ctx context.Context, address string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"address": address})
	return err
}
