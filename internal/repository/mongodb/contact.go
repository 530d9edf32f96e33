// Package mongodb implements contactsync.Repository on MongoDB, the store
// the venue ingestion jobs write contacts into.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ignite/mailerlite-sync/internal/domain"
)

// DefaultQuarantineCollection receives contacts that failed to import.
const DefaultQuarantineCollection = "failed"

// ContactRepo implements contactsync.Repository against one MongoDB database.
type ContactRepo struct {
	client     *mongo.Client
	db         *mongo.Database
	quarantine string
}

// Connect dials the cluster, verifies it with a ping and returns a repo over
// the named database.
func Connect(ctx context.Context, uri, database, quarantine string) (*ContactRepo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return NewContactRepo(client, database, quarantine), nil
}

// NewContactRepo wraps an already connected client.
func NewContactRepo(client *mongo.Client, database, quarantine string) *ContactRepo {
	if quarantine == "" {
		quarantine = DefaultQuarantineCollection
	}
	return &ContactRepo{client: client, db: client.Database(database), quarantine: quarantine}
}

// Close disconnects the client.
func (r *ContactRepo) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *ContactRepo) FindUnexported(ctx context.Context, collection string) ([]domain.Contact, error) {
	cur, err := r.db.Collection(collection).Find(ctx, UnexportedFilter())
	if err != nil {
		return nil, fmt.Errorf("find unexported in %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var contacts []domain.Contact
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode contact in %s: %w", collection, err)
		}
		contacts = append(contacts, ContactFromBSON(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return contacts, nil
}

func (r *ContactRepo) MarkExported(ctx context.Context, collection string, contacts []domain.Contact, at time.Time) (int64, error) {
	filter := SelectionFilter(contacts)
	if filter == nil {
		return 0, nil
	}
	res, err := r.db.Collection(collection).UpdateMany(ctx, filter, ExportedUpdate(at))
	if err != nil {
		return 0, fmt.Errorf("mark exported in %s: %w", collection, err)
	}
	return res.ModifiedCount, nil
}

func (r *ContactRepo) InsertQuarantine(ctx context.Context, rec domain.QuarantineRecord) error {
	if _, err := r.db.Collection(r.quarantine).InsertOne(ctx, bson.M(rec.Doc())); err != nil {
		return fmt.Errorf("insert into %s: %w", r.quarantine, err)
	}
	return nil
}

func (r *ContactRepo) DeleteContact(ctx context.Context, collection string, c domain.Contact) (int64, error) {
	res, err := r.db.Collection(collection).DeleteOne(ctx, IdentityFilter(c))
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

// UnexportedFilter matches documents never confirmed by MailerLite whose
// email is present and not an empty, "none" or "null" placeholder.
func UnexportedFilter() bson.M {
	return bson.M{
		"$and": bson.A{
			bson.M{"$or": bson.A{
				bson.M{domain.FieldExported: false},
				bson.M{domain.FieldExported: bson.M{"$exists": false}},
			}},
			bson.M{domain.FieldEmail: bson.M{"$exists": true, "$type": "string"}},
			bson.M{domain.FieldEmail: bson.M{"$not": primitive.Regex{Pattern: `^\s*(none|null)?\s*$`, Options: "i"}}},
		},
	}
}

// ExportedUpdate flags documents as exported at the given time.
func ExportedUpdate(at time.Time) bson.M {
	return bson.M{"$set": bson.M{
		domain.FieldExported:   true,
		domain.FieldExportedAt: at,
		domain.FieldUpdatedAt:  at,
	}}
}

// SelectionFilter matches the given contacts by _id, falling back to email
// for contacts without one. Returns nil for an empty selection.
func SelectionFilter(contacts []domain.Contact) bson.M {
	var ids, emails bson.A
	for _, c := range contacts {
		id, ok := contactID(c)
		if !ok {
			emails = append(emails, c.Email)
			continue
		}
		ids = append(ids, id)
	}
	switch {
	case len(ids) > 0 && len(emails) > 0:
		return bson.M{"$or": bson.A{
			bson.M{domain.FieldID: bson.M{"$in": ids}},
			bson.M{domain.FieldEmail: bson.M{"$in": emails}},
		}}
	case len(ids) > 0:
		return bson.M{domain.FieldID: bson.M{"$in": ids}}
	case len(emails) > 0:
		return bson.M{domain.FieldEmail: bson.M{"$in": emails}}
	}
	return nil
}

// IdentityFilter matches exactly one contact: by _id when known, else by email.
func IdentityFilter(c domain.Contact) bson.M {
	id, ok := contactID(c)
	if !ok {
		return bson.M{domain.FieldEmail: c.Email}
	}
	return bson.M{domain.FieldID: id}
}

// contactID returns the _id to filter on. The decoded value is used as is;
// only contacts built without one fall back to parsing ID.
func contactID(c domain.Contact) (any, bool) {
	if c.RawID != nil {
		return c.RawID, true
	}
	if c.ID == "" {
		return nil, false
	}
	return documentID(c.ID), true
}

// documentID restores the ObjectID form of hex ids; other ids were strings.
func documentID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

// ContactFromBSON maps a decoded document onto a Contact. The _id moves to
// Contact.RawID (and its text form to Contact.ID) so quarantine copies get a
// fresh id in the quarantine collection.
func ContactFromBSON(doc bson.M) domain.Contact {
	var id string
	switch v := doc[domain.FieldID].(type) {
	case primitive.ObjectID:
		id = v.Hex()
	case string:
		id = v
	case nil:
	default:
		id = fmt.Sprint(v)
	}

	plain := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == domain.FieldID {
			continue
		}
		plain[k] = plainValue(v)
	}
	c := domain.ContactFromDocument(id, plain)
	c.RawID = doc[domain.FieldID]
	return c
}

// plainValue converts driver-specific scalar types into their Go
// equivalents; nested documents are kept as decoded.
func plainValue(v any) any {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.ObjectID:
		return x.Hex()
	case primitive.Decimal128:
		return x.String()
	default:
		return v
	}
}
