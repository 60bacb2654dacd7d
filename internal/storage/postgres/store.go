package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/behzadon/pollvote/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const pollColumns = `id, question, options, total_votes, created_at, updated_at`

// incrementVoteQuery bumps one option and the poll total in a single row
// update. The WHERE clause rejects an index outside the stored array, and
// RETURNING yields the row exactly as this statement left it.
const incrementVoteQuery = `
	UPDATE polls
	SET options = jsonb_set(
			options,
			ARRAY[$2::text, 'votes'],
			to_jsonb((options->$3::int->>'votes')::bigint + 1)
		),
		total_votes = total_votes + 1,
		updated_at = $4
	WHERE id = $1 AND jsonb_array_length(options) > $3::int
	RETURNING ` + pollColumns

type optionList []domain.Option

func (o optionList) Value() (driver.Value, error) {
	data, err := json.Marshal([]domain.Option(o))
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	return string(data), nil
}

func (o *optionList) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*o = nil
		return nil
	default:
		return fmt.Errorf("scan options: unsupported type %T", src)
	}
	var opts []domain.Option
	if err := json.Unmarshal(data, &opts); err != nil {
		return fmt.Errorf("unmarshal options: %w", err)
	}
	*o = opts
	return nil
}

type pollRow struct {
	ID         uuid.UUID  `db:"id"`
	Question   string     `db:"question"`
	Options    optionList `db:"options"`
	TotalVotes int64      `db:"total_votes"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

func (r *pollRow) toDomain() *domain.Poll {
	return &domain.Poll{
		ID:         r.ID.String(),
		Question:   r.Question,
		Options:    []domain.Option(r.Options),
		TotalVotes: r.TotalVotes,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

func (s *Store) Create(ctx context.Context, question string, options []string) (*domain.Poll, error) {
	poll, err := domain.NewPoll(question, options)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	row := pollRow{
		ID:        uuid.New(),
		Question:  poll.Question,
		Options:   optionList(poll.Options),
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO polls (id, question, options, total_votes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.db.ExecContext(ctx, query,
		row.ID, row.Question, row.Options, row.TotalVotes, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return nil, &domain.StoreError{Op: "insert poll", Err: err}
	}

	return row.toDomain(), nil
}

func (s *Store) FindAll(ctx context.Context) ([]domain.Poll, error) {
	var rows []pollRow
	query := `SELECT ` + pollColumns + ` FROM polls ORDER BY created_at DESC, seq DESC`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, &domain.StoreError{Op: "find polls", Err: err}
	}

	polls := make([]domain.Poll, len(rows))
	for i := range rows {
		polls[i] = *rows[i].toDomain()
	}
	return polls, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*domain.Poll, error) {
	pollID, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrInvalidIdentifier
	}

	var row pollRow
	query := `SELECT ` + pollColumns + ` FROM polls WHERE id = $1`
	err = s.db.GetContext(ctx, &row, query, pollID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "find poll", Err: err}
	}
	return row.toDomain(), nil
}

func (s *Store) IncrementOptionVote(ctx context.Context, id string, optionIndex int) (*domain.Poll, error) {
	pollID, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrInvalidIdentifier
	}
	if optionIndex < 0 {
		return nil, domain.ErrNotFound
	}

	var row pollRow
	err = s.db.GetContext(ctx, &row, incrementVoteQuery,
		pollID, strconv.Itoa(optionIndex), optionIndex, time.Now().UTC(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "increment vote", Err: err}
	}
	return row.toDomain(), nil
}
