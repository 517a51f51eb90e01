package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectMongo opens and verifies a client for the local record store.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

type ledgerSyncDocument struct {
	Disposition string    `bson:"disposition"`
	EntryIDs    []int64   `bson:"entry_ids,omitempty"`
	Error       string    `bson:"error,omitempty"`
	SyncedAt    time.Time `bson:"synced_at"`
}

type paymentDocument struct {
	CorrelationID   string              `bson:"_id"`
	TransactionID   *string             `bson:"transaction_id"`
	Amount          string              `bson:"amount"`
	Fee             string              `bson:"fee"`
	Total           string              `bson:"total"`
	Method          string              `bson:"method"`
	InstrumentLabel string              `bson:"instrument_label"`
	LastFour        string              `bson:"last_four"`
	Status          string              `bson:"status"`
	PayerID         string              `bson:"payer_id"`
	AccountID       int64               `bson:"account_id"`
	Channel         string              `bson:"channel"`
	Invoices        []int64             `bson:"invoices,omitempty"`
	Engagements     []int64             `bson:"engagements,omitempty"`
	DeferredLedger  string              `bson:"deferred_ledger,omitempty"`
	LedgerSync      *ledgerSyncDocument `bson:"ledger_sync,omitempty"`
	CreatedAt       time.Time           `bson:"created_at"`
	UpdatedAt       time.Time           `bson:"updated_at"`
}

func toPaymentDocument(p *domain.Payment) paymentDocument {
	doc := paymentDocument{
		CorrelationID:   p.CorrelationID,
		TransactionID:   p.TransactionID,
		Amount:          p.Amount.StringFixed(2),
		Fee:             p.Fee.StringFixed(2),
		Total:           p.Total.StringFixed(2),
		Method:          string(p.Method),
		InstrumentLabel: p.InstrumentLabel,
		LastFour:        p.LastFour,
		Status:          string(p.Status),
		PayerID:         p.PayerID,
		AccountID:       p.AccountID,
		Channel:         string(p.Channel),
		Invoices:        p.Metadata.Invoices,
		Engagements:     p.Metadata.Engagements,
		DeferredLedger:  string(p.Metadata.DeferredLedger),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if m := p.Metadata.LedgerSync; m != nil {
		doc.LedgerSync = &ledgerSyncDocument{
			Disposition: string(m.Disposition),
			EntryIDs:    m.EntryIDs,
			Error:       m.Error,
			SyncedAt:    m.SyncedAt,
		}
	}
	return doc
}

func (d paymentDocument) toDomain() (*domain.Payment, error) {
	p := &domain.Payment{
		CorrelationID:   d.CorrelationID,
		TransactionID:   d.TransactionID,
		Method:          domain.ChargeMethod(d.Method),
		InstrumentLabel: d.InstrumentLabel,
		LastFour:        d.LastFour,
		Status:          domain.PaymentStatus(d.Status),
		PayerID:         d.PayerID,
		AccountID:       d.AccountID,
		Channel:         domain.Channel(d.Channel),
		Metadata: domain.PaymentMetadata{
			Invoices:    d.Invoices,
			Engagements: d.Engagements,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.DeferredLedger != "" {
		p.Metadata.DeferredLedger = []byte(d.DeferredLedger)
	}
	var err error
	if p.Amount, err = decimal.NewFromString(d.Amount); err != nil {
		return nil, fmt.Errorf("payment %s amount: %w", d.CorrelationID, err)
	}
	if p.Fee, err = decimal.NewFromString(d.Fee); err != nil {
		return nil, fmt.Errorf("payment %s fee: %w", d.CorrelationID, err)
	}
	if p.Total, err = decimal.NewFromString(d.Total); err != nil {
		return nil, fmt.Errorf("payment %s total: %w", d.CorrelationID, err)
	}
	if s := d.LedgerSync; s != nil {
		p.Metadata.LedgerSync = &domain.LedgerSyncMarker{
			Disposition: domain.LedgerDisposition(s.Disposition),
			EntryIDs:    s.EntryIDs,
			Error:       s.Error,
			SyncedAt:    s.SyncedAt,
		}
	}
	return p, nil
}

// PaymentStore keeps payment records keyed by correlation id.
type PaymentStore struct {
	collection *mongo.Collection
}

func NewPaymentStore(db *mongo.Database) *PaymentStore {
	return &PaymentStore{collection: db.Collection("payments")}
}

// EnsureIndexes creates the lookup indexes for the payments collection.
func (s *PaymentStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "payer_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "transaction_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}
	return nil
}

// ErrDuplicatePayment is returned when a correlation id was already recorded.
var ErrDuplicatePayment = errors.New("payment already recorded")

func (s *PaymentStore) Insert(ctx context.Context, p *domain.Payment) error {
	_, err := s.collection.InsertOne(ctx, toPaymentDocument(p))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", p.CorrelationID, ErrDuplicatePayment)
	}
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (s *PaymentStore) Get(ctx context.Context, correlationID string) (*domain.Payment, error) {
	var doc paymentDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": correlationID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", correlationID, domain.ErrPaymentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment: %w", err)
	}
	return doc.toDomain()
}

// Update replaces the mutable parts of a payment: status, deferred payload and sync marker.
func (s *PaymentStore) Update(ctx context.Context, p *domain.Payment) error {
	doc := toPaymentDocument(p)
	set := bson.M{
		"status":          doc.Status,
		"transaction_id":  doc.TransactionID,
		"deferred_ledger": doc.DeferredLedger,
		"ledger_sync":     doc.LedgerSync,
		"updated_at":      doc.UpdatedAt,
	}
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": p.CorrelationID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", p.CorrelationID, domain.ErrPaymentNotFound)
	}
	return nil
}

// ClaimSettlement stamps p's settling marker only if no other settlement holds
// the payment and its deferred write has not landed.
func (s *PaymentStore) ClaimSettlement(ctx context.Context, p *domain.Payment) error {
	doc := toPaymentDocument(p)
	filter := bson.M{
		"_id":             p.CorrelationID,
		"deferred_ledger": bson.M{"$nin": bson.A{"", nil}},
		"ledger_sync.disposition": bson.M{"$nin": bson.A{
			string(domain.LedgerSettling), string(domain.LedgerWritten),
		}},
	}
	set := bson.M{"ledger_sync": doc.LedgerSync, "updated_at": doc.UpdatedAt}
	res, err := s.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to claim settlement: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", p.CorrelationID, domain.ErrSettlementClaimed)
	}
	return nil
}

// AcceptanceStore keeps one acceptance record per engagement.
type AcceptanceStore struct {
	collection *mongo.Collection
}

func NewAcceptanceStore(db *mongo.Database) *AcceptanceStore {
	return &AcceptanceStore{collection: db.Collection("engagement_acceptances")}
}

func (s *AcceptanceStore) Get(ctx context.Context, engagementID int64) (*domain.EngagementAcceptance, error) {
	var rec domain.EngagementAcceptance
	err := s.collection.FindOne(ctx, bson.M{"_id": engagementID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("engagement %d: %w", engagementID, domain.ErrAcceptanceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch acceptance: %w", err)
	}
	return &rec, nil
}

func (s *AcceptanceStore) Save(ctx context.Context, rec *domain.EngagementAcceptance) error {
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": rec.EngagementID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save acceptance: %w", err)
	}
	return nil
}

// InstrumentStore keeps tokenized payment instruments.
type InstrumentStore struct {
	collection *mongo.Collection
}

func NewInstrumentStore(db *mongo.Database) *InstrumentStore {
	return &InstrumentStore{collection: db.Collection("instruments")}
}

func (s *InstrumentStore) Save(ctx context.Context, in *domain.SavedInstrument) error {
	_, err := s.collection.InsertOne(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to save instrument: %w", err)
	}
	return nil
}

func (s *InstrumentStore) ListByPayer(ctx context.Context, payerID string) ([]domain.SavedInstrument, error) {
	cur, err := s.collection.Find(ctx, bson.M{"payer_id": payerID}, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instruments: %w", err)
	}
	defer cur.Close(ctx)

	var out []domain.SavedInstrument
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode instruments: %w", err)
	}
	return out, nil
}
