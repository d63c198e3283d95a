package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/dbx"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository"
)

// compile-time check that *IdeaDB implements repository.IdeaRepository
var _ repository.IdeaRepository = (*IdeaDB)(nil)

// IdeaDB stores ideas in the ideas table and voter sets in idea_voters.
type IdeaDB struct {
	conn *sql.DB
}

// Create inserts a new idea and fills in its ID and timestamps.
func (db *IdeaDB) Create(ctx context.Context, idea *model.Idea) error {
	idea.ID = xid.New().String()
	now := time.Now().UTC()
	idea.CreatedAt = now
	idea.UpdatedAt = now
	idea.Voters = []string{}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO ideas (id, title, description, category, author_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		idea.ID,
		idea.Title,
		idea.Description,
		idea.Category,
		idea.AuthorID,
		idea.CreatedAt,
		idea.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating idea: %w", err)
	}

	return nil
}

// GetByID loads one idea with its voter set.
// Returns apperror.ErrNotFound if no idea has that ID.
func (db *IdeaDB) GetByID(ctx context.Context, id string) (*model.Idea, error) {
	idea, err := getIdea(ctx, db.conn, id)
	if err != nil {
		return nil, err
	}

	voters, err := loadVoters(ctx, db.conn, []string{id})
	if err != nil {
		return nil, err
	}
	idea.Voters = voters[id]
	if idea.Voters == nil {
		idea.Voters = []string{}
	}

	return idea, nil
}

func getIdea(ctx context.Context, q dbx.DBTX, id string) (*model.Idea, error) {
	var idea model.Idea
	err := q.QueryRowContext(ctx,
		`SELECT id, title, description, category, author_id, created_at, updated_at
		 FROM ideas WHERE id = ?`,
		id,
	).Scan(
		&idea.ID,
		&idea.Title,
		&idea.Description,
		&idea.Category,
		&idea.AuthorID,
		&idea.CreatedAt,
		&idea.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("idea", id)
		}
		return nil, fmt.Errorf("sqlite: getting idea %s: %w", id, err)
	}
	return &idea, nil
}

// List returns ideas ranked by vote count, most votes first. Ties go to the
// newer idea. Voter sets are loaded with one follow-up query once the ranked
// rows have been read and closed.
func (db *IdeaDB) List(ctx context.Context, opts repository.ListOptions) ([]model.Idea, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := max(opts.Offset, 0)

	var (
		where string
		args  []any
	)
	if opts.Category != "" {
		where = "WHERE i.category = ?"
		args = append(args, opts.Category)
	}
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT i.id, i.title, i.description, i.category, i.author_id, i.created_at, i.updated_at,
		        COUNT(v.user_id) AS votes
		 FROM ideas i
		 LEFT JOIN idea_voters v ON v.idea_id = i.id
		 `+where+`
		 GROUP BY i.id
		 ORDER BY votes DESC, i.created_at DESC, i.id DESC
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing ideas: %w", err)
	}

	ideas := make([]model.Idea, 0, limit)
	for rows.Next() {
		var (
			i     model.Idea
			votes int
		)
		if err := rows.Scan(
			&i.ID, &i.Title, &i.Description, &i.Category, &i.AuthorID,
			&i.CreatedAt, &i.UpdatedAt, &votes,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning idea row: %w", err)
		}
		ideas = append(ideas, i)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating ideas: %w", err)
	}
	// Release the single connection before the voter query below.
	rows.Close()

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

// loadVoters returns the voter sets of the given ideas, keyed by idea ID,
// each in the order the votes were cast.
func loadVoters(ctx context.Context, q dbx.DBTX, ideaIDs []string) (map[string][]string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ideaIDs)), ",")
	args := make([]any, len(ideaIDs))
	for i, id := range ideaIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx,
		`SELECT idea_id, user_id FROM idea_voters
		 WHERE idea_id IN (`+placeholders+`)
		 ORDER BY created_at, rowid`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading voters: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string, len(ideaIDs))
	for rows.Next() {
		var ideaID, userID string
		if err := rows.Scan(&ideaID, &userID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning voter row: %w", err)
		}
		out[ideaID] = append(out[ideaID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating voters: %w", err)
	}

	return out, nil
}

// Update rewrites title, description and category only. The voter set and
// author are untouched, so an edit can never erase a concurrent vote.
func (db *IdeaDB) Update(ctx context.Context, id string, fields model.IdeaFields) (*model.Idea, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE ideas
		 SET title = ?, description = ?, category = ?, updated_at = ?
		 WHERE id = ?`,
		fields.Title,
		fields.Description,
		fields.Category,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating idea %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, apperror.NotFound("idea", id)
	}

	return db.GetByID(ctx, id)
}

// Delete removes an idea; its voter rows go with it (ON DELETE CASCADE).
func (db *IdeaDB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM ideas WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting idea %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("idea", id)
	}

	return nil
}

// ToggleVoter flips one user's vote inside a single transaction.
//
// TOGGLE PROTOCOL (one transaction):
//  1. confirm the idea exists, else NotFound and nothing is written
//  2. DELETE the (idea, user) row; one row deleted means the vote is withdrawn
//  3. otherwise INSERT it; the primary key rejects any duplicate
//  4. COUNT the voter rows before commit, so the returned count is the
//     state this toggle produced
//
// With the pool capped at one connection, two toggles can never interleave.
func (db *IdeaDB) ToggleVoter(ctx context.Context, ideaID, userID string) (model.VoteTally, error) {
	var tally model.VoteTally

	err := dbx.WithTx(ctx, db.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM ideas WHERE id = ?`, ideaID).Scan(&one)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("idea", ideaID)
			}
			return fmt.Errorf("sqlite: checking idea %s: %w", ideaID, err)
		}

		result, err := tx.ExecContext(ctx,
			`DELETE FROM idea_voters WHERE idea_id = ? AND user_id = ?`,
			ideaID, userID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: removing vote: %w", err)
		}
		removed, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}

		if removed == 0 {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO idea_voters (idea_id, user_id, created_at) VALUES (?, ?, ?)`,
				ideaID, userID, time.Now().UTC(),
			)
			if err != nil {
				return fmt.Errorf("sqlite: adding vote: %w", err)
			}
			tally.Voting = true
		}

		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM idea_voters WHERE idea_id = ?`, ideaID,
		).Scan(&tally.Count)
		if err != nil {
			return fmt.Errorf("sqlite: counting votes: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.VoteTally{}, err
	}

	return tally, nil
}
