package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/dbx"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository"
)

var _ repository.IdeaRepository = (*IdeaDB)(nil)

type IdeaDB struct {
	conn *sql.DB
}

func (db *IdeaDB) Create(ctx context.Context, idea *model.Idea) error {
	idea.ID = xid.New().String()
	now := time.Now().UTC()
	idea.CreatedAt = now
	idea.UpdatedAt = now
	idea.Voters = []string{}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO ideas (id, title, description, category, author_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		idea.ID, idea.Title, idea.Description, idea.Category, idea.AuthorID,
		idea.CreatedAt, idea.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: creating idea: %w", err)
	}
	return nil
}

func (db *IdeaDB) GetByID(ctx context.Context, id string) (*model.Idea, error) {
	var idea model.Idea
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, title, description, category, author_id, created_at, updated_at
		 FROM ideas WHERE id = $1`,
		id,
	).Scan(&idea.ID, &idea.Title, &idea.Description, &idea.Category, &idea.AuthorID,
		&idea.CreatedAt, &idea.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("idea", id)
		}
		return nil, fmt.Errorf("postgres: getting idea %s: %w", id, err)
	}

	voters, err := loadVoters(ctx, db.conn, []string{id})
	if err != nil {
		return nil, err
	}
	idea.Voters = voters[id]
	if idea.Voters == nil {
		idea.Voters = []string{}
	}
	return &idea, nil
}

// List ranks ideas by vote count, newest first on ties.
func (db *IdeaDB) List(ctx context.Context, opts repository.ListOptions) ([]model.Idea, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := max(opts.Offset, 0)

	query := `SELECT i.id, i.title, i.description, i.category, i.author_id, i.created_at, i.updated_at,
	                 COUNT(v.user_id) AS votes
	          FROM ideas i
	          LEFT JOIN idea_voters v ON v.idea_id = i.id`
	var args []any
	if opts.Category != "" {
		query += ` WHERE i.category = $1`
		args = append(args, opts.Category)
	}
	query += fmt.Sprintf(` GROUP BY i.id ORDER BY votes DESC, i.created_at DESC, i.id DESC LIMIT $%d OFFSET $%d`,
		len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing ideas: %w", err)
	}
	defer rows.Close()

	ideas := make([]model.Idea, 0, limit)
	for rows.Next() {
		var (
			i     model.Idea
			votes int
		)
		if err := rows.Scan(&i.ID, &i.Title, &i.Description, &i.Category, &i.AuthorID,
			&i.CreatedAt, &i.UpdatedAt, &votes); err != nil {
			return nil, fmt.Errorf("postgres: scanning idea row: %w", err)
		}
		ideas = append(ideas, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating ideas: %w", err)
	}
	if len(ideas) == 0 {
		return ideas, nil
	}

	ids := make([]string, len(ideas))
	for i := range ideas {
		ids[i] = ideas[i].ID
	}
	voters, err := loadVoters(ctx, db.conn, ids)
	if err != nil {
		return nil, err
	}
	for i := range ideas {
		ideas[i].Voters = voters[ideas[i].ID]
		if ideas[i].Voters == nil {
			ideas[i].Voters = []string{}
		}
	}
	return ideas, nil
}

func loadVoters(ctx context.Context, q dbx.DBTX, ideaIDs []string) (map[string][]string, error) {
	args := make([]any, len(ideaIDs))
	for i, id := range ideaIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx,
		`SELECT idea_id, user_id FROM idea_voters
		 WHERE idea_id IN (`+placeholders(1, len(ideaIDs))+`)
		 ORDER BY created_at, user_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: loading voters: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string, len(ideaIDs))
	for rows.Next() {
		var ideaID, userID string
		if err := rows.Scan(&ideaID, &userID); err != nil {
			return nil, fmt.Errorf("postgres: scanning voter row: %w", err)
		}
		out[ideaID] = append(out[ideaID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating voters: %w", err)
	}
	return out, nil
}

// Update rewrites the editable columns only.
func (db *IdeaDB) Update(ctx context.Context, id string, fields model.IdeaFields) (*model.Idea, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE ideas SET title = $1, description = $2, category = $3, updated_at = $4
		 WHERE id = $5`,
		fields.Title, fields.Description, fields.Category, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: updating idea %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return nil, apperror.NotFound("idea", id)
	}
	return db.GetByID(ctx, id)
}

func (db *IdeaDB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM ideas WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting idea %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("idea", id)
	}
	return nil
}

// ToggleVoter flips one user's vote in a transaction that first locks the
// idea row (SELECT ... FOR UPDATE). Every toggle on the same idea queues
// behind that lock, so the delete-or-insert decision and the count always
// see the previous toggle's committed result.
func (db *IdeaDB) ToggleVoter(ctx context.Context, ideaID, userID string) (model.VoteTally, error) {
	var tally model.VoteTally

	err := dbx.WithTx(ctx, db.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var locked string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM ideas WHERE id = $1 FOR UPDATE`, ideaID,
		).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("idea", ideaID)
			}
			return fmt.Errorf("postgres: locking idea %s: %w", ideaID, err)
		}

		result, err := tx.ExecContext(ctx,
			`DELETE FROM idea_voters WHERE idea_id = $1 AND user_id = $2`, ideaID, userID,
		)
		if err != nil {
			return fmt.Errorf("postgres: removing vote: %w", err)
		}
		removed, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("postgres: checking rows affected: %w", err)
		}

		if removed == 0 {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO idea_voters (idea_id, user_id, created_at) VALUES ($1, $2, $3)`,
				ideaID, userID, time.Now().UTC(),
			); err != nil {
				return fmt.Errorf("postgres: adding vote: %w", err)
			}
			tally.Voting = true
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM idea_voters WHERE idea_id = $1`, ideaID,
		).Scan(&tally.Count); err != nil {
			return fmt.Errorf("postgres: counting votes: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.VoteTally{}, err
	}
	return tally, nil
}
