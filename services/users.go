package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"elearning-platform/internal/auth"
	"elearning-platform/models"
	"elearning-platform/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	TouchLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error
	List(ctx context.Context, skip, limit int64) ([]models.User, error)
}

// TokenIssuer is satisfied by *auth.TokenService.
type TokenIssuer interface {
	IssueTokenPair(ctx context.Context, userID, role string) (*auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	RevokeToken(ctx context.Context, jti string, isRefresh bool) error
	RevokeAllUserTokens(ctx context.Context, userID string) error
}

type MongoUserRepository struct {
	col *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{col: db.Collection("users")}
}

func (r *MongoUserRepository) Create(ctx context.Context, user *models.User) error {
	res, err := r.col.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return err
	}
	user.ID = insertedID(res)
	return nil
}

func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.col.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&user); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *MongoUserRepository) TouchLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	_, err := r.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"last_login": at, "updated_at": at}})
	return err
}

func (r *MongoUserRepository) List(ctx context.Context, skip, limit int64) ([]models.User, error) {
	opts := pageOptions(skip, limit).SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AuthService registers users and exchanges credentials for token pairs.
type AuthService struct {
	users      UserRepository
	tokens     TokenIssuer
	bcryptCost int
	now        func() time.Time
}

func NewAuthService(users UserRepository, tokens TokenIssuer, bcryptCost int) *AuthService {
	return &AuthService{users: users, tokens: tokens, bcryptCost: bcryptCost, now: time.Now}
}

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, *auth.TokenPair, error) {
	email := normalizeEmail(req.Email)
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	hash, err := utils.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := models.RoleStudent
	if req.IsInstructor {
		role = models.RoleInstructor
	}
	now := s.now().UTC()
	user := &models.User{
		Email:        email,
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.tokens.IssueTokenPair(ctx, user.ID.Hex(), user.Role)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.User, *auth.TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, ErrInactiveUser
	}

	pair, err := s.tokens.IssueTokenPair(ctx, user.ID.Hex(), user.Role)
	if err != nil {
		return nil, nil, err
	}
	// Login succeeds even if the timestamp write fails.
	_ = s.users.TouchLogin(ctx, user.ID, s.now().UTC())
	return user, pair, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

// Logout revokes the access token behind claims, or every token of the user
// when all is set.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims, all bool) error {
	if all {
		return s.tokens.RevokeAllUserTokens(ctx, claims.UserID)
	}
	return s.tokens.RevokeToken(ctx, claims.ID, false)
}

func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.users.FindByID(ctx, userID)
}

// ListUsers pages through accounts, newest first.
func (s *AuthService) ListUsers(ctx context.Context, skip, limit int64) ([]models.UserInfo, error) {
	users, err := s.users.List(ctx, skip, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserInfo, 0, len(users))
	for i := range users {
		out = append(out, users[i].Info())
	}
	return out, nil
}

// CreateUser inserts a user with an explicit role. Used by the seed command.
func (s *AuthService) CreateUser(ctx context.Context, email, username, fullName, password, role string) (*models.User, error) {
	hash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now().UTC()
	user := &models.User{
		Email:        normalizeEmail(email),
		Username:     username,
		FullName:     fullName,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
