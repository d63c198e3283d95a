package model

import (
	"encoding/json"
	"slices"
	"time"
)

// Idea is a community submission that members vote on.
//
// AuthorID is set once at creation from the authenticated principal and is
// never reassigned. Voters is a set of user IDs: the storage layer keeps one
// row per (idea, user) pair, so a user appears in it at most once.
//
// The vote count is not stored anywhere. It is always len(Voters); JSON
// output carries it as "voteCount" (see MarshalJSON).
type Idea struct {
	ID          string    `json:"id"          db:"id"`
	Title       string    `json:"title"       db:"title"`
	Description string    `json:"description" db:"description"`
	Category    string    `json:"category"    db:"category"`
	AuthorID    string    `json:"authorId"    db:"author_id"`
	Voters      []string  `json:"voters"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`
}

// VoteCount is the number of distinct voters.
func (i *Idea) VoteCount() int {
	return len(i.Voters)
}

// HasVoter reports whether userID is in the voter set.
func (i *Idea) HasVoter(userID string) bool {
	return slices.Contains(i.Voters, userID)
}

// MarshalJSON adds the derived voteCount to the serialised idea.
func (i Idea) MarshalJSON() ([]byte, error) {
	type plain Idea // drops the method set so Marshal doesn't recurse
	voters := i.Voters
	if voters == nil {
		voters = []string{}
	}
	p := plain(i)
	p.Voters = voters
	return json.Marshal(struct {
		plain
		VoteCount int `json:"voteCount"`
	}{plain: p, VoteCount: len(voters)})
}

// IdeaFields are the author-editable attributes of an idea.
// Updates touch exactly these columns; the voter set is never rewritten.
type IdeaFields struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// VoteTally is the state of one voter's membership after a toggle,
// read inside the same atomic scope as the write.
type VoteTally struct {
	Count  int  `json:"votes"`
	Voting bool `json:"voting"`
}
