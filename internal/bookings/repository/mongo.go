package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "spacebook/internal/bookings/errors"
	"spacebook/pkg/config"
	mongotx "spacebook/pkg/db/mongo"
	"spacebook/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// When inside a transaction (SessionContext), returns the original context unchanged
// with a no-op cancel function, as we cannot wrap SessionContext without breaking
// transaction semantics.
func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", bookingserrors.ErrDuplicateID, booking.ID)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindAll(ctx context.Context, filter Filter, limit int, offset int64) ([]*model.Booking, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "start", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	return r.find(ctx, buildFilter(filter), opts)
}

func (r *mongoBookingRepository) Count(ctx context.Context, filter Filter) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*model.Booking, error) {
	return r.find(ctx, bson.M{
		"user_id": userID,
		"status":  bson.M{"$in": model.ActiveStatuses},
		"end":     bson.M{"$gt": now},
	}, sortByStart())
}

func (r *mongoBookingRepository) FindOverlapping(ctx context.Context, facilityID string, start, end time.Time, statuses ...model.Status) ([]*model.Booking, error) {
	return r.find(ctx, bson.M{
		"facility_id": facilityID,
		"status":      bson.M{"$in": statuses},
		"start":       bson.M{"$lt": end},
		"end":         bson.M{"$gt": start},
	}, sortByStart())
}

func (r *mongoBookingRepository) FindByUserAndStatus(ctx context.Context, userID string, statuses ...model.Status) ([]*model.Booking, error) {
	return r.find(ctx, bson.M{
		"user_id": userID,
		"status":  bson.M{"$in": statuses},
	}, sortByStart())
}

func (r *mongoBookingRepository) FindByRange(ctx context.Context, start, end time.Time) ([]*model.Booking, error) {
	return r.find(ctx, bson.M{
		"start": bson.M{"$lt": end},
		"end":   bson.M{"$gt": start},
	}, sortByStart())
}

func (r *mongoBookingRepository) FindArrivalOverdue(ctx context.Context, now time.Time) ([]*model.Booking, error) {
	return r.find(ctx, bson.M{
		"status":            model.StatusApproved,
		"arrival_confirmed": false,
		"arrival_deadline":  bson.M{"$lt": now},
	}, sortByStart())
}

func (r *mongoBookingRepository) Transition(ctx context.Context, id string, from []model.Status, change model.StatusChange) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	set := bson.M{
		"status":     change.To,
		"updated_at": change.At,
	}
	if change.Reason != "" {
		set["status_reason"] = change.Reason
	}
	if change.AdminResponse != "" {
		set["admin_response"] = change.AdminResponse
	}
	if change.ArrivalDeadline != nil {
		set["arrival_deadline"] = *change.ArrivalDeadline
	}
	if change.ArrivalConfirmedAt != nil {
		set["arrival_confirmed"] = true
		set["arrival_confirmed_at"] = *change.ArrivalConfirmedAt
	}
	if change.End != nil {
		set["end"] = *change.End
	}

	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated model.Booking
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to transition booking: %w", err)
	}

	current, findErr := r.FindByID(ctx, id)
	if findErr != nil {
		return nil, findErr
	}
	return current, bookingserrors.ErrStatusMismatch
}

func (r *mongoBookingRepository) UpdateDetails(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": booking.ID, "status": model.StatusPending}
	update := bson.M{
		"$set": bson.M{
			"purpose":      booking.Purpose,
			"start":        booking.Start,
			"end":          booking.End,
			"participants": booking.Participants,
			"equipment":    booking.Equipment,
			"updated_at":   booking.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if result.MatchedCount == 0 {
		if _, err := r.FindByID(ctx, booking.ID); err != nil {
			return err
		}
		return bookingserrors.ErrStatusMismatch
	}
	return nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func (r *mongoBookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := make([]*model.Booking, 0)
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}

func sortByStart() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "start", Value: 1}, {Key: "_id", Value: 1}})
}

func buildFilter(f Filter) bson.M {
	filter := bson.M{}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	if f.FacilityID != "" {
		filter["facility_id"] = f.FacilityID
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.From != nil {
		filter["end"] = bson.M{"$gt": *f.From}
	}
	if f.To != nil {
		filter["start"] = bson.M{"$lt": *f.To}
	}
	return filter
}
