package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	facilityerrors "spacebook/internal/facilities/errors"
	"spacebook/pkg/config"
	"spacebook/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoFacilityRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoFacilityRepository(cfg *config.Config) FacilityRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoFacilityRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoFacilityRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoFacilityRepository) Create(ctx context.Context, facility *model.Facility) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, facility); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", facilityerrors.ErrDuplicateName, facility.Name)
		}
		return fmt.Errorf("failed to create facility: %w", err)
	}
	return nil
}

func (r *mongoFacilityRepository) FindByID(ctx context.Context, id string) (*model.Facility, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoFacilityRepository) FindByName(ctx context.Context, name string) (*model.Facility, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pattern := "^" + regexp.QuoteMeta(name) + "$"
	return r.findOne(ctx, bson.M{"name": primitive.Regex{Pattern: pattern, Options: "i"}})
}

func (r *mongoFacilityRepository) findOne(ctx context.Context, filter bson.M) (*model.Facility, error) {
	var facility model.Facility
	if err := r.collection.FindOne(ctx, filter).Decode(&facility); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, facilityerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find facility: %w", err)
	}
	return &facility, nil
}

func (r *mongoFacilityRepository) FindAll(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Facility, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, activeFilter(activeOnly), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find facilities: %w", err)
	}
	defer cursor.Close(ctx)

	facilities := make([]*model.Facility, 0)
	if err = cursor.All(ctx, &facilities); err != nil {
		return nil, fmt.Errorf("failed to decode facilities: %w", err)
	}
	return facilities, nil
}

func (r *mongoFacilityRepository) Count(ctx context.Context, activeOnly bool) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, activeFilter(activeOnly))
	if err != nil {
		return 0, fmt.Errorf("failed to count facilities: %w", err)
	}
	return count, nil
}

func (r *mongoFacilityRepository) Update(ctx context.Context, facility *model.Facility) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": facility.ID}, facility)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", facilityerrors.ErrDuplicateName, facility.Name)
		}
		return fmt.Errorf("failed to update facility: %w", err)
	}
	if result.MatchedCount == 0 {
		return facilityerrors.ErrNotFound
	}
	return nil
}

func activeFilter(activeOnly bool) bson.M {
	if activeOnly {
		return bson.M{"active": true}
	}
	return bson.M{}
}
