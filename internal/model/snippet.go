// Package model defines the data structures shared by the service,
// repository and handler layers.
package model

import "time"

// Snippet is a saved piece of playground code.
//
// Built-in snippets ship with the binary (the example list in the editor) and
// are read-only; everything else lives in the snippets table.
type Snippet struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Language    string    `json:"language"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	Builtin     bool      `json:"builtin"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
