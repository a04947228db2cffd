package identity

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type principalDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Email       string             `bson:"email"`
	DisplayName string             `bson:"display_name"`
	SecretHash  string             `bson:"secret_hash"`
	Disabled    bool               `bson:"disabled"`
	Claims      map[string]any     `bson:"claims,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
}

// MongoProvider backs the Provider interface with a principals collection.
type MongoProvider struct {
	collection *mongo.Collection
	mailer     Mailer
	resetURL   string
}

func NewMongoProvider(db *mongo.Database, mailer Mailer, resetURL string) *MongoProvider {
	return &MongoProvider{
		collection: db.Collection("principals"),
		mailer:     mailer,
		resetURL:   resetURL,
	}
}

func (p *MongoProvider) CreatePrincipal(ctx context.Context, email, secret, displayName string) (string, error) {
	existing, err := p.findByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", ErrEmailTaken
	}

	hash, err := HashSecret(secret)
	if err != nil {
		return "", err
	}
	doc := &principalDoc{
		ID:          primitive.NewObjectID(),
		Email:       email,
		DisplayName: displayName,
		SecretHash:  hash,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := p.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrEmailTaken
		}
		return "", err
	}
	return doc.ID.Hex(), nil
}

func (p *MongoProvider) Authenticate(ctx context.Context, email, secret string) (*Principal, error) {
	doc, err := p.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if doc == nil || !CheckSecretHash(secret, doc.SecretHash) {
		return nil, ErrBadCredentials
	}
	if doc.Disabled {
		return nil, ErrDisabled
	}
	return toPrincipal(doc), nil
}

func (p *MongoProvider) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	doc, err := p.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrPrincipalNotFound
	}
	return toPrincipal(doc), nil
}

func (p *MongoProvider) SetClaims(ctx context.Context, principalID string, claims map[string]any) error {
	return p.updateByID(ctx, principalID, bson.M{"claims": claims})
}

func (p *MongoProvider) UpdatePrincipal(ctx context.Context, principalID string, fields Fields) error {
	set := bson.M{}
	if fields.Email != nil {
		set["email"] = *fields.Email
	}
	if fields.DisplayName != nil {
		set["display_name"] = *fields.DisplayName
	}
	if fields.Secret != nil {
		hash, err := HashSecret(*fields.Secret)
		if err != nil {
			return err
		}
		set["secret_hash"] = hash
	}
	if len(set) == 0 {
		return nil
	}
	return p.updateByID(ctx, principalID, set)
}

func (p *MongoProvider) SetDisabled(ctx context.Context, principalID string, disabled bool) error {
	return p.updateByID(ctx, principalID, bson.M{"disabled": disabled})
}

func (p *MongoProvider) DeletePrincipal(ctx context.Context, principalID string) error {
	id, err := primitive.ObjectIDFromHex(principalID)
	if err != nil {
		return ErrPrincipalNotFound
	}
	res, err := p.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

func (p *MongoProvider) SendCredentialReset(ctx context.Context, email string) error {
	doc, err := p.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrPrincipalNotFound
	}
	token, err := GenerateResetToken(email, 15*time.Minute)
	if err != nil {
		return err
	}
	subject := "Password Reset"
	body := fmt.Sprintf("Click the link to reset your password: %s?token=%s", p.resetURL, token)
	if err := p.mailer.SendEmail(email, subject, body); err != nil {
		log.Println("Email sending error:", err)
		return err
	}
	return nil
}

func (p *MongoProvider) findByEmail(ctx context.Context, email string) (*principalDoc, error) {
	var doc principalDoc
	err := p.collection.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (p *MongoProvider) updateByID(ctx context.Context, principalID string, set bson.M) error {
	id, err := primitive.ObjectIDFromHex(principalID)
	if err != nil {
		return ErrPrincipalNotFound
	}
	res, err := p.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

func toPrincipal(doc *principalDoc) *Principal {
	return &Principal{
		ID:          doc.ID.Hex(),
		Email:       doc.Email,
		DisplayName: doc.DisplayName,
		Disabled:    doc.Disabled,
		Claims:      doc.Claims,
	}
}
