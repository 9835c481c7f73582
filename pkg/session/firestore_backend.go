package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultFirestoreCollection holds one document per session.
const DefaultFirestoreCollection = "sessions"

// FirestoreConfig configures the Firestore backend.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
	Collection      string
}

// FirestoreBackend implements Backend on Cloud Firestore. Each save writes
// an expire_at field that a Firestore TTL policy can act on; because TTL
// deletion is lazy, documents past expire_at read as missing.
type FirestoreBackend struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// firestoreSession is the stored document. The session itself is kept as
// JSON so every backend shares one serialization.
type firestoreSession struct {
	Data         string     `firestore:"data"`
	LastActivity time.Time  `firestore:"last_activity"`
	ExpireAt     *time.Time `firestore:"expire_at"`
}

// NewFirestoreBackend creates a Firestore client for cfg.ProjectID.
func NewFirestoreBackend(ctx context.Context, cfg FirestoreConfig) (*FirestoreBackend, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = DefaultFirestoreCollection
	}

	return &FirestoreBackend{
		client:     client,
		collection: collection,
		now:        time.Now,
	}, nil
}

// Name implements Backend.
func (b *FirestoreBackend) Name() string { return "firestore" }

// Load implements Backend.
func (b *FirestoreBackend) Load(ctx context.Context, id string) (*Session, error) {
	snap, err := b.client.Collection(b.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var doc firestoreSession
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode session document: %w", err)
	}
	return fromFirestore(&doc, b.now())
}

// Save implements Backend.
func (b *FirestoreBackend) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	doc, err := toFirestore(s, ttl)
	if err != nil {
		return err
	}
	if _, err := b.client.Collection(b.collection).Doc(s.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (b *FirestoreBackend) Delete(ctx context.Context, id string) error {
	if _, err := b.client.Collection(b.collection).Doc(id).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SweepExpired implements Backend. Expiry is left to the Firestore TTL policy.
func (b *FirestoreBackend) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Ping reads at most one document from the collection.
func (b *FirestoreBackend) Ping(ctx context.Context) error {
	iter := b.client.Collection(b.collection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping failed: %w", err)
	}
	return nil
}

// Close implements Backend.
func (b *FirestoreBackend) Close() error {
	return b.client.Close()
}

func toFirestore(s *Session, ttl time.Duration) (*firestoreSession, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	doc := &firestoreSession{
		Data:         string(data),
		LastActivity: s.LastActivity,
	}
	if ttl > 0 {
		expireAt := s.LastActivity.Add(ttl)
		doc.ExpireAt = &expireAt
	}
	return doc, nil
}

func fromFirestore(doc *firestoreSession, now time.Time) (*Session, error) {
	if doc.ExpireAt != nil && now.After(*doc.ExpireAt) {
		return nil, ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal([]byte(doc.Data), &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}
