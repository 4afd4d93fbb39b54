// Package directory reads user records owned by the profile service. The
// realtime core never writes to it.
package directory

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rajyaabhishek/LawX-sub001/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

const roleLawyer = "lawyer"

type userDocument struct {
	ID             primitive.ObjectID `bson:"_id"`
	ExternalID     string             `bson:"clerkId"`
	Name           string             `bson:"name"`
	Username       string             `bson:"username"`
	ProfilePicture string             `bson:"profilePicture"`
	IsVerified     bool               `bson:"isVerified"`
	Role           string             `bson:"role"`
}

func (d userDocument) summary() models.UserSummary {
	return models.UserSummary{
		ID:             d.ID.Hex(),
		Name:           d.Name,
		Username:       d.Username,
		ProfilePicture: d.ProfilePicture,
		IsVerified:     d.IsVerified,
		Role:           d.Role,
	}
}

var summaryProjection = bson.M{
	"_id":            1,
	"clerkId":        1,
	"name":           1,
	"username":       1,
	"profilePicture": 1,
	"isVerified":     1,
	"role":           1,
}

// Directory is the read-only view over the users collection.
type Directory struct {
	users *mongo.Collection
}

func New(db *mongo.Database, collection string) *Directory {
	return &Directory{users: db.Collection(collection)}
}

// GetUser returns the display summary of one user by canonical id.
func (d *Directory) GetUser(ctx context.Context, id string) (models.UserSummary, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.UserSummary{}, ErrUserNotFound
	}

	var doc userDocument
	err = d.users.FindOne(ctx, bson.M{"_id": oid}, options.FindOne().SetProjection(summaryProjection)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.UserSummary{}, ErrUserNotFound
	}
	if err != nil {
		return models.UserSummary{}, fmt.Errorf("find user: %w", err)
	}
	return doc.summary(), nil
}

// BulkUsers returns summaries keyed by canonical id. Unknown or malformed
// ids are absent from the result.
func (d *Directory) BulkUsers(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	result := make(map[string]models.UserSummary, len(ids))
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return result, nil
	}

	cur, err := d.users.Find(ctx, bson.M{"_id": bson.M{"$in": oids}}, options.Find().SetProjection(summaryProjection))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc userDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		result[doc.ID.Hex()] = doc.summary()
	}
	return result, cur.Err()
}

// Exists reports whether a canonical id belongs to a user.
func (d *Directory) Exists(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	n, err := d.users.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n > 0, nil
}

// FindByExternalID maps an identity-provider id to the canonical id.
func (d *Directory) FindByExternalID(ctx context.Context, externalID string) (string, error) {
	var doc userDocument
	err := d.users.FindOne(ctx, bson.M{"clerkId": externalID}, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find user by external id: %w", err)
	}
	return doc.ID.Hex(), nil
}

// VerifiedLawyerIDs lists the canonical ids of every verified lawyer.
func (d *Directory) VerifiedLawyerIDs(ctx context.Context) ([]string, error) {
	cur, err := d.users.Find(ctx,
		bson.M{"role": roleLawyer, "isVerified": true},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("find lawyers: %w", err)
	}
	defer cur.Close(ctx)

	ids := []string{}
	for cur.Next(ctx) {
		var doc userDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode lawyer: %w", err)
		}
		ids = append(ids, doc.ID.Hex())
	}
	return ids, cur.Err()
}
