package model

import "time"

const MaxNoteTitleLength = 200

type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotePatch carries the mutable fields of a note. A nil field is left unchanged.
type NotePatch struct {
	Title   *string
	Content *string
}

func (p NotePatch) Empty() bool {
	return p.Title == nil && p.Content == nil
}
