//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const maxRecordFieldLen = 255

// RecordList names which provider list a record belongs to.
type RecordList string

const (
	// ShortList holds records with free-form provider identifiers.
	ShortList RecordList = "short"
	// LongList holds records whose identifier is exactly four digits.
	LongList RecordList = "long"
)

// Table returns the backing table name.
func (l RecordList) Table() string {
	if l == LongList {
		return "longlists"
	}
	return "shortlists"
}

// ListForNID picks the list a record is filed under: a four-digit numeric NID goes to the
// long list, anything else to the short list.
func ListForNID(nid string) RecordList {
	if len(nid) != 4 {
		return ShortList
	}
	for _, r := range nid {
		if r < '0' || r > '9' {
			return ShortList
		}
	}
	return LongList
}

// Record is a legacy provider identifier entry.
type Record struct {
	ID        int64      `json:"id"         db:"id"`
	List      RecordList `json:"list"       db:"-"`
	NID       string     `json:"NID"        db:"nid"`
	LIC       string     `json:"LIC"        db:"lic"`
	Name      string     `json:"name"       db:"name"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// CreateRecordRequest contains fields to create a new record.
type CreateRecordRequest struct {
	NID  string `json:"NID"`
	LIC  string `json:"LIC"`
	Name string `json:"name"`
}

// Normalize trims surrounding whitespace from all fields.
func (r *CreateRecordRequest) Normalize() {
	r.NID = strings.TrimSpace(r.NID)
	r.LIC = strings.TrimSpace(r.LIC)
	r.Name = strings.TrimSpace(r.Name)
}

func (r *CreateRecordRequest) Validate() error {
	return errors.Join(
		validateRecordField("NID", r.NID),
		validateRecordField("LIC", r.LIC),
		validateRecordField("name", r.Name),
	)
}

// SearchRecordsRequest is the record search input.
type SearchRecordsRequest struct {
	Term  string `json:"searchTerm"`
	Limit int    `json:"limit,omitempty"`
}

func (r *SearchRecordsRequest) Validate() error {
	return validateRecordField("searchTerm", strings.TrimSpace(r.Term))
}

// FieldError names the offending input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + " " + e.Message }

func validateRecordField(field, value string) error {
	if value == "" {
		return &FieldError{Field: field, Message: "is required"}
	}
	if utf8.RuneCountInString(value) > maxRecordFieldLen {
		return &FieldError{Field: field, Message: "cannot exceed 255 characters"}
	}
	return nil
}
