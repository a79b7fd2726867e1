// Package principals loads and saves users together with their tracked
// session list, stored as JSONB under the configured sessions column.
package principals

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/common/validation"
	"store-sessions/internal/models"
	"store-sessions/internal/sessions"
)

const DefaultTable = "users"

var _ sessions.Persister = (*Repository)(nil)

type Options struct {
	Table  string
	Fields sessions.FieldNames
	// Schema, when set, is checked against every document before it is saved.
	Schema *validation.JSONSchema
	Logger logger.Logger
	Clock  func() time.Time
}

type Repository struct {
	db     *sql.DB
	fields sessions.FieldNames
	schema *validation.JSONSchema
	logger logger.Logger
	now    func() time.Time

	selectQuery string
	updateQuery string
}

func NewRepository(db *sql.DB, opts Options) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if err := opts.Fields.Validate(); err != nil {
		return nil, err
	}
	table := opts.Table
	if table == "" {
		table = DefaultTable
	}

	r := &Repository{
		db:     db,
		fields: opts.Fields,
		schema: opts.Schema,
		logger: logger.OrNop(opts.Logger),
		now:    opts.Clock,
	}
	if r.now == nil {
		r.now = time.Now
	}

	t := pq.QuoteIdentifier(table)
	col := pq.QuoteIdentifier(opts.Fields.Sessions)
	r.selectQuery = fmt.Sprintf(`SELECT id, email, %s, updated_at FROM %s WHERE id = $1`, col, t)
	r.updateQuery = fmt.Sprintf(`UPDATE %s SET %s = $1, updated_at = $2 WHERE id = $3 RETURNING updated_at`, t, col)
	return r, nil
}

// FindByID loads a user. A missing row yields a PRINCIPAL_NOT_FOUND error.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var (
		user models.User
		raw  []byte
	)
	err := r.db.QueryRowContext(ctx, r.selectQuery, id).Scan(&user.ID, &user.Email, &raw, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewPrincipalNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("query user %s: %w", id, err)
	}

	list, err := r.decode(raw)
	if err != nil {
		// Readable records are kept; the rest is rewritten by the next
		// reconciliation.
		r.logger.Warn("Skipping unreadable session records", map[string]interface{}{
			"userId": id,
			"kept":   len(list),
			"error":  err.Error(),
		})
	}
	user.Sessions = list
	return &user, nil
}

// Save writes p's session list and returns p with its new update time.
func (r *Repository) Save(ctx context.Context, p sessions.Principal) (sessions.Principal, error) {
	encoded := r.fields.EncodeList(p.SessionList())

	if r.schema != nil {
		doc := map[string]interface{}{r.fields.Sessions: encoded}
		if err := validation.ValidateDocument(*r.schema, doc); err != nil {
			return nil, errors.NewValidationError(err.Error())
		}
	}

	payload, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("marshal sessions: %w", err)
	}

	var updatedAt time.Time
	err = r.db.QueryRowContext(ctx, r.updateQuery, payload, r.now().UTC(), p.PrincipalID()).Scan(&updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewPrincipalNotFoundError(p.PrincipalID())
	}
	if err != nil {
		return nil, fmt.Errorf("update user %s: %w", p.PrincipalID(), err)
	}

	if u, ok := p.(*models.User); ok {
		u.UpdatedAt = updatedAt
	}
	r.logger.Debug("Principal sessions saved", map[string]interface{}{
		"userId": p.PrincipalID(),
		"count":  len(encoded),
	})
	return p, nil
}

func (r *Repository) decode(raw []byte) ([]models.SessionRecord, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("unmarshal sessions: %w", err)
	}
	return r.fields.DecodeList(generic)
}
