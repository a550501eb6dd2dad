package database

import (
	"context"
	"errors"
	"fmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"refhub/entity"
	"refhub/internal/config"
)

const (
	collectionReferrers = "referrers"
	collectionReferrals = "referrals"
	collectionUsers     = "users"
)

// MongoDB implements the referral store over a document database.
// Connections are opened per operation, matching the low request volume of
// a marketing endpoint.
type MongoDB struct {
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) *MongoDB {
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	return &MongoDB{
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
}

func (m *MongoDB) connect(ctx context.Context) (*mongo.Client, error) {
	connection, err := mongo.Connect(ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	return connection, nil
}

func (m *MongoDB) disconnect(ctx context.Context, connection *mongo.Client) {
	_ = connection.Disconnect(ctx)
}

func (m *MongoDB) writeError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return entity.ErrDuplicate
	}
	return fmt.Errorf("mongodb insert: %w", err)
}

// EnsureIndexes creates the unique indexes that back the subsystem's
// invariants: one referrer per email, globally unique codes, one redemption
// per friend email. Creates are insert-if-absent against these indexes;
// the application-level pre-checks are a fast path, not the guarantee.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	db := connection.Database(m.database)
	unique := options.Index().SetUnique(true)

	referrers := db.Collection(collectionReferrers)
	_, err = referrers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: unique},
	})
	if err != nil {
		return fmt.Errorf("referrers indexes: %w", err)
	}

	referrals := db.Collection(collectionReferrals)
	_, err = referrals.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "friend_email", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "referrer_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("referrals indexes: %w", err)
	}

	return nil
}

func (m *MongoDB) ReferrerByEmail(ctx context.Context, email string) (*entity.Referrer, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionReferrers)
	filter := bson.D{{Key: "email", Value: email}}
	var referrer entity.Referrer
	err = collection.FindOne(ctx, filter).Decode(&referrer)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &referrer, nil
}

func (m *MongoDB) ReferrerByCode(ctx context.Context, code string) (*entity.Referrer, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionReferrers)
	filter := bson.D{{Key: "code", Value: code}}
	var referrer entity.Referrer
	err = collection.FindOne(ctx, filter).Decode(&referrer)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &referrer, nil
}

func (m *MongoDB) CodeExists(ctx context.Context, code string) (bool, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return false, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionReferrers)
	filter := bson.D{{Key: "code", Value: code}}
	count, err := collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongodb count: %w", err)
	}
	return count > 0, nil
}

func (m *MongoDB) CreateReferrer(ctx context.Context, referrer *entity.Referrer) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionReferrers)
	_, err = collection.InsertOne(ctx, referrer)
	if err != nil {
		return m.writeError(err)
	}
	return nil
}

func (m *MongoDB) RedemptionByFriendEmail(ctx context.Context, email string) (*entity.Redemption, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionReferrals)
	filter := bson.D{{Key: "friend_email", Value: email}}
	var redemption entity.Redemption
	err = collection.FindOne(ctx, filter).Decode(&redemption)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &redemption, nil
}

func (m *MongoDB) RedemptionById(ctx context.Context, id string) (*entity.Redemption, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionReferrals)
	filter := bson.D{{Key: "_id", Value: id}}
	var redemption entity.Redemption
	err = collection.FindOne(ctx, filter).Decode(&redemption)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &redemption, nil
}

func (m *MongoDB) CreateRedemption(ctx context.Context, redemption *entity.Redemption) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionReferrals)
	_, err = collection.InsertOne(ctx, redemption)
	if err != nil {
		return m.writeError(err)
	}
	return nil
}

// IncrementReferralCount bumps the referrer's counter with an atomic $inc;
// concurrent redemptions of the same code never lose updates.
func (m *MongoDB) IncrementReferralCount(ctx context.Context, referrerId string) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionReferrers)
	filter := bson.D{{Key: "_id", Value: referrerId}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "referral_count", Value: 1}}}}
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongodb update: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("referrer not found: %s", referrerId)
	}
	return nil
}

func (m *MongoDB) RedemptionsByReferrer(ctx context.Context, referrerId string) ([]*entity.Redemption, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionReferrals)
	filter := bson.D{{Key: "referrer_id", Value: referrerId}}
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	defer cursor.Close(ctx)

	var redemptions []*entity.Redemption
	if err = cursor.All(ctx, &redemptions); err != nil {
		return nil, fmt.Errorf("mongodb cursor: %w", err)
	}
	return redemptions, nil
}

func (m *MongoDB) Redemptions(ctx context.Context) ([]*entity.Redemption, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionReferrals)
	cursor, err := collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	defer cursor.Close(ctx)

	var redemptions []*entity.Redemption
	if err = cursor.All(ctx, &redemptions); err != nil {
		return nil, fmt.Errorf("mongodb cursor: %w", err)
	}
	return redemptions, nil
}

func (m *MongoDB) SetRedemptionStatus(ctx context.Context, id string, status entity.RedemptionStatus) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionReferrals)
	filter := bson.D{{Key: "_id", Value: id}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: status}}}}
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongodb update: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("redemption not found: %s", id)
	}
	return nil
}

func (m *MongoDB) UserByToken(ctx context.Context, token string) (*entity.User, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{Key: "token", Value: token}}
	var user entity.User
	err = collection.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &user, nil
}

func (m *MongoDB) ReferrerCount(ctx context.Context) (int64, error) {
	return m.count(ctx, collectionReferrers)
}

func (m *MongoDB) RedemptionCount(ctx context.Context) (int64, error) {
	return m.count(ctx, collectionReferrals)
}

func (m *MongoDB) count(ctx context.Context, name string) (int64, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(name)
	count, err := collection.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongodb count: %w", err)
	}
	return count, nil
}
