package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftea/order-saga/shared/events"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// PostgresDeadLetterStore keeps a copy of every dead-lettered message in the service database
type PostgresDeadLetterStore struct {
	db *sqlx.DB
}

var _ events.DeadLetterSink = (*PostgresDeadLetterStore)(nil)

// NewPostgresDeadLetterStore creates a new PostgresDeadLetterStore
func NewPostgresDeadLetterStore(db *sqlx.DB) *PostgresDeadLetterStore {
	return &PostgresDeadLetterStore{db: db}
}

// postgresDeadLetter represents a dead letter in database
type postgresDeadLetter struct {
	EventID   *string   `db:"event_id"`
	Queue     string    `db:"queue"`
	Topic     string    `db:"topic"`
	Body      []byte    `db:"body"`
	Reason    string    `db:"reason"`
	Metadata  []byte    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

// DeadLetter stores the message
func (s *PostgresDeadLetterStore) DeadLetter(ctx context.Context, letter *events.DeadLetter) error {
	row, err := toPostgresDeadLetter(letter)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO dead_letters (event_id, queue, topic, body, reason, metadata, created_at)
		VALUES (:event_id, :queue, :topic, :body, :reason, :metadata, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return errors.Wrap(err, "failed to insert dead letter")
	}
	return nil
}

func toPostgresDeadLetter(letter *events.DeadLetter) (*postgresDeadLetter, error) {
	metadata := letter.Metadata
	if metadata == nil {
		metadata = make(events.Metadata)
	}
	rawMetadata, err := json.Marshal(metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal dead letter metadata")
	}

	row := &postgresDeadLetter{
		Queue:     letter.Queue,
		Topic:     letter.Topic.String(),
		Body:      letter.Body,
		Reason:    letter.Reason,
		Metadata:  rawMetadata,
		CreatedAt: letter.Timestamp,
	}
	if row.Body == nil {
		row.Body = []byte{}
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if id, ok := metadata.Get(events.MetadataEventID); ok {
		row.EventID = &id
	}
	return row, nil
}
