package ai

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrQuotaExceeded = errors.New("ai: daily AI quota exceeded")

// UserAIQuota tracks one user's daily Gemini token budget.
type UserAIQuota struct {
	UserID          string    `bson:"user_id" json:"user_id"`
	DailyTokenLimit int       `bson:"daily_token_limit" json:"daily_token_limit"`
	TokensUsedToday int       `bson:"tokens_used_today" json:"tokens_used_today"`
	RequestsToday   int       `bson:"requests_today" json:"requests_today"`
	LastResetDate   time.Time `bson:"last_reset_date" json:"last_reset_date"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

// QuotaService enforces per-user daily token budgets in the ai_quotas
// collection. Counters reset lazily at the first request of a UTC day.
type QuotaService struct {
	col          *mongo.Collection
	defaultLimit int
	now          func() time.Time
}

func NewQuotaService(db *mongo.Database, defaultLimit int) *QuotaService {
	return &QuotaService{
		col:          db.Collection("ai_quotas"),
		defaultLimit: defaultLimit,
		now:          time.Now,
	}
}

// Consume reserves tokens for userID, returning ErrQuotaExceeded when the
// reservation would go over the daily limit.
func (q *QuotaService) Consume(ctx context.Context, userID string, tokens int) error {
	now := q.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Create on first use
	_, err := q.col.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$setOnInsert": bson.M{
			"daily_token_limit": q.defaultLimit,
			"tokens_used_today": 0,
			"requests_today":    0,
			"last_reset_date":   today,
			"created_at":        now,
			"updated_at":        now,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return err
	}

	// Reset if new day
	_, err = q.col.UpdateOne(ctx,
		bson.M{"user_id": userID, "last_reset_date": bson.M{"$lt": today}},
		bson.M{"$set": bson.M{
			"tokens_used_today": 0,
			"requests_today":    0,
			"last_reset_date":   today,
			"updated_at":        now,
		}},
	)
	if err != nil {
		return err
	}

	// Increment atomically only while under the limit
	filter := bson.M{
		"user_id": userID,
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$tokens_used_today", tokens}},
			"$daily_token_limit",
		}},
	}
	res, err := q.col.UpdateOne(ctx, filter, bson.M{
		"$inc": bson.M{"tokens_used_today": tokens, "requests_today": 1},
		"$set": bson.M{"updated_at": now},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

// Status returns the current counters for userID.
func (q *QuotaService) Status(ctx context.Context, userID string) (*UserAIQuota, error) {
	var quota UserAIQuota
	err := q.col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&quota)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &UserAIQuota{UserID: userID, DailyTokenLimit: q.defaultLimit}, nil
	}
	if err != nil {
		return nil, err
	}
	return &quota, nil
}

// SetLimit overrides the daily limit for one user.
func (q *QuotaService) SetLimit(ctx context.Context, userID string, dailyLimit int) error {
	now := q.now()
	_, err := q.col.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set": bson.M{"daily_token_limit": dailyLimit, "updated_at": now},
			"$setOnInsert": bson.M{
				"tokens_used_today": 0,
				"requests_today":    0,
				"last_reset_date":   now.UTC().Truncate(24 * time.Hour),
				"created_at":        now,
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}
