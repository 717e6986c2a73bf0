package ledger

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/scanrouter/internal/gcp"
	"github.com/Lllllllleong/scanrouter/internal/models"
)

// DefaultCollection holds scan records in Firestore.
const DefaultCollection = "scans"

// Firestore is a Ledger backed by a Firestore collection.
type Firestore struct {
	client     *firestore.Client
	collection string
	owned      bool
}

// NewFirestore wraps an existing client. Close does not close the client.
func NewFirestore(client *firestore.Client, collection string) *Firestore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Firestore{client: client, collection: collection}
}

// OpenFirestore creates a client for the project's database and owns it.
func OpenFirestore(ctx context.Context, projectID, database, collection string) (*Firestore, error) {
	client, err := gcp.NewFirestoreClient(ctx, projectID, database)
	if err != nil {
		return nil, err
	}
	f := NewFirestore(client, collection)
	f.owned = true
	return f, nil
}

// Begin adds rec to the collection as PROCESSING.
func (f *Firestore) Begin(ctx context.Context, rec models.ScanRecord) (string, error) {
	rec.Status = models.StatusProcessing
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	docRef, _, err := f.client.Collection(f.collection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create scan record: %w", err)
	}
	return docRef.ID, nil
}

// Finish updates the record's status and outcome fields.
func (f *Firestore) Finish(ctx context.Context, id string, o Outcome) error {
	updates := []firestore.Update{
		{Path: "status", Value: o.Status},
	}
	if o.Destination != "" {
		updates = append(updates, firestore.Update{Path: "destination", Value: o.Destination})
	}
	if o.ErrorDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: o.ErrorDetails})
	}
	if o.PageCount > 0 {
		updates = append(updates, firestore.Update{Path: "pageCount", Value: o.PageCount})
	}
	if _, err := f.client.Collection(f.collection).Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update scan record %s: %w", id, err)
	}
	return nil
}

// FindByHash queries for records with the same content hash and ignores
// failed ones.
func (f *Firestore) FindByHash(ctx context.Context, hash string) (string, bool, error) {
	docs, err := f.client.Collection(f.collection).Where("fileHash", "==", hash).Documents(ctx).GetAll()
	if err != nil {
		return "", false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	for _, d := range docs {
		var rec models.ScanRecord
		if err := d.DataTo(&rec); err != nil {
			return "", false, fmt.Errorf("failed to decode scan record %s: %w", d.Ref.ID, err)
		}
		if rec.Status != models.StatusFailed {
			return d.Ref.ID, true, nil
		}
	}
	return "", false, nil
}

// Close closes the client when the ledger created it.
func (f *Firestore) Close() error {
	if f.owned {
		return f.client.Close()
	}
	return nil
}
