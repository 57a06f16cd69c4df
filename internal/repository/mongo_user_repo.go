package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hitoshi/belanjaku/internal/model"
)

const userCollection = "users"

// MongoUserRepo はMongoDBのusersコレクションを使用したユーザーリポジトリ。
// IDENTITY_STORE=mongo（デフォルト）の場合にIdentity Storeとして使用する。
type MongoUserRepo struct {
	collection *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
// 生成時にemailの一意インデックスを作成し、重複登録の最終防衛線とする。
func NewMongoUserRepo(ctx context.Context, db *mongo.Database) (*MongoUserRepo, error) {
	collection := db.Collection(userCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_email_unique"),
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create user indexes: %w", err)
	}

	return &MongoUserRepo{collection: collection}, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := r.findOne(ctx, bson.M{"email": email})
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
// emailの一意インデックスに違反した場合はErrDuplicateEmailを返す。
func (r *MongoUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Merge は指定IDのユーザーにpatchの非nilフィールドを$setし、更新後のドキュメントを返す。
// 対象が存在しない場合はnilを返す。
func (r *MongoUserRepo) Merge(ctx context.Context, id string, patch UserPatch) (*model.User, error) {
	result := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": mergeSet(patch)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var user model.User
	if err := result.Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to merge user: %w", err)
	}
	return &user, nil
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var user model.User
	if err := r.collection.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// mergeSet はUserPatchから$set句を組み立てる。updated_atは常に含める。
func mergeSet(patch UserPatch) bson.M {
	set := bson.M{"updated_at": patch.UpdatedAt}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Image != nil {
		set["image"] = *patch.Image
	}
	if patch.Provider != nil {
		set["provider"] = *patch.Provider
	}
	if patch.ProviderUserID != nil {
		set["provider_user_id"] = *patch.ProviderUserID
	}
	if patch.Role != nil {
		set["role"] = *patch.Role
	}
	return set
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)
