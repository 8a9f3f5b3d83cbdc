package providers

import (
	"context"

	"tripbuilder/crmsync/internal/constants"
)

// RemoteClient is the CRM surface the sync engine depends on.
type RemoteClient interface {
	// SearchRecords fetches one page of a pipeline. A nil cursor starts at the beginning.
	SearchRecords(ctx context.Context, pipelineID string, cursor *Cursor, pageSize int) (*RecordPage, error)

	// LookupRecords runs a free-text search inside a pipeline.
	LookupRecords(ctx context.Context, pipelineID, query string) ([]RemoteRecord, error)

	GetRecord(ctx context.Context, remoteID string) (*RemoteRecord, error)

	// CreateRecord creates a record in the pipeline configured for kind and returns its id.
	CreateRecord(ctx context.Context, kind constants.ResourceKind, payload *RecordPayload) (string, error)

	// UpdateRecord overwrites the base fields and the full custom field list.
	UpdateRecord(ctx context.Context, remoteID string, payload *RecordPayload) error

	DeleteRecord(ctx context.Context, remoteID string) error

	SearchProfiles(ctx context.Context, query string, cursor *Cursor, pageSize int) (*ProfilePage, error)
	CreateProfile(ctx context.Context, profile *RemoteProfile) (string, error)

	GetPipelines(ctx context.Context) ([]RemotePipeline, error)
	GetFieldDefinitions(ctx context.Context, model string) ([]FieldDefinition, error)
	UpdateFieldOptions(ctx context.Context, fieldID string, options []string) error
}

// Cursor is the dual continuation token. The remote needs both values together.
type Cursor struct {
	StartAfterID string
	StartAfter   string
}

// RecordPage is one page of pipeline records. Next is nil on the last page.
type RecordPage struct {
	Records []RemoteRecord
	Next    *Cursor
	Total   int
}

// ProfilePage is one page of contacts.
type ProfilePage struct {
	Profiles []RemoteProfile
	Next     *Cursor
	Total    int
}

// CustomFieldValue is one entry of a record's custom field list. The remote
// uses several value keys depending on the field type.
type CustomFieldValue struct {
	ID                string      `json:"id"`
	Key               string      `json:"key,omitempty"`
	FieldValue        interface{} `json:"fieldValue,omitempty"`
	FieldValueString  interface{} `json:"fieldValueString,omitempty"`
	FieldValueNumber  interface{} `json:"fieldValueNumber,omitempty"`
	FieldValueDate    interface{} `json:"fieldValueDate,omitempty"`
	FieldValueBoolean interface{} `json:"fieldValueBoolean,omitempty"`
	Value             interface{} `json:"value,omitempty"`
}

// Raw returns the first value key that is set.
func (c CustomFieldValue) Raw() interface{} {
	for _, v := range []interface{}{
		c.FieldValue,
		c.FieldValueString,
		c.FieldValueNumber,
		c.FieldValueDate,
		c.FieldValueBoolean,
		c.Value,
	} {
		if v != nil {
			return v
		}
	}
	return nil
}

// RemoteRecord is an opportunity as returned by the CRM.
type RemoteRecord struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	PipelineID      string             `json:"pipelineId"`
	PipelineStageID string             `json:"pipelineStageId"`
	ContactID       string             `json:"contactId"`
	Status          string             `json:"status"`
	Source          string             `json:"source"`
	CustomFields    []CustomFieldValue `json:"customFields"`
}

// FieldWrite is one custom field in a create or update payload.
type FieldWrite struct {
	ID         string      `json:"id"`
	Key        string      `json:"key,omitempty"`
	FieldValue interface{} `json:"field_value"`
}

// RecordPayload is the body of a create or update.
type RecordPayload struct {
	Name            string       `json:"name"`
	PipelineID      string       `json:"pipelineId,omitempty"`
	PipelineStageID string       `json:"pipelineStageId,omitempty"`
	ContactID       string       `json:"contactId,omitempty"`
	Status          string       `json:"status,omitempty"`
	Source          string       `json:"source,omitempty"`
	LocationID      string       `json:"locationId,omitempty"`
	CustomFields    []FieldWrite `json:"customFields"`
}

// RemoteProfile is a CRM contact.
type RemoteProfile struct {
	ID         string   `json:"id,omitempty"`
	FirstName  string   `json:"firstName,omitempty"`
	LastName   string   `json:"lastName,omitempty"`
	Email      string   `json:"email,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Address1   string   `json:"address1,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	LocationID string   `json:"locationId,omitempty"`
}

type RemoteStage struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type RemotePipeline struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Stages []RemoteStage `json:"stages"`
}

// FieldDefinition describes a custom field of the location.
type FieldDefinition struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	FieldKey string   `json:"fieldKey"`
	DataType string   `json:"dataType"`
	Model    string   `json:"model"`
	Options  []string `json:"options"`
}
