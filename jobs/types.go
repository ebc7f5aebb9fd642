package jobs

import (
	"encoding/json"

	"github.com/filehaven/filehaven/errors"
)

// Kind identifies what a job does and which handler executes it.
type Kind string

const (
	KindFileIndexing        Kind = "file_indexing"
	KindThumbnailGeneration Kind = "thumbnail_generation"
	KindBackupCreation      Kind = "backup_creation"
	KindVersionCleanup      Kind = "version_cleanup"
	KindWebhookDelivery     Kind = "webhook_delivery"
	KindEmailNotification   Kind = "email_notification"
	KindSearchIndexRebuild  Kind = "search_index_rebuild"
	KindDatabaseCleanup     Kind = "database_cleanup"
)

// Kinds returns all known job kinds.
func Kinds() []Kind {
	return []Kind{
		KindFileIndexing,
		KindThumbnailGeneration,
		KindBackupCreation,
		KindVersionCleanup,
		KindWebhookDelivery,
		KindEmailNotification,
		KindSearchIndexRebuild,
		KindDatabaseCleanup,
	}
}

// IsValidKind returns true if the kind string names a known job kind.
func IsValidKind(k string) bool {
	switch Kind(k) {
	case KindFileIndexing, KindThumbnailGeneration, KindBackupCreation,
		KindVersionCleanup, KindWebhookDelivery, KindEmailNotification,
		KindSearchIndexRebuild, KindDatabaseCleanup:
		return true
	default:
		return false
	}
}

// Payload is the typed work description carried by a job. Each kind has
// exactly one payload type; the pairing is what lets DecodePayload hand
// handlers a concrete struct instead of raw JSON.
type Payload interface {
	Kind() Kind
}

// FileIndexingPayload requests (re-)indexing of a stored file's metadata
// and content for search.
type FileIndexingPayload struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

func (FileIndexingPayload) Kind() Kind { return KindFileIndexing }

// ThumbnailGenerationPayload requests preview generation for an image or
// document file.
type ThumbnailGenerationPayload struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

func (ThumbnailGenerationPayload) Kind() Kind { return KindThumbnailGeneration }

// BackupCreationPayload requests creation of a backup archive.
type BackupCreationPayload struct {
	BackupID     string `json:"backup_id"`
	IncludeFiles bool   `json:"include_files"`
}

func (BackupCreationPayload) Kind() Kind { return KindBackupCreation }

// VersionCleanupPayload prunes old file versions. A nil FileID means all
// files.
type VersionCleanupPayload struct {
	FileID *string `json:"file_id"`
}

func (VersionCleanupPayload) Kind() Kind { return KindVersionCleanup }

// WebhookDeliveryPayload delivers an event to a registered webhook.
type WebhookDeliveryPayload struct {
	WebhookID string          `json:"webhook_id"`
	Event     string          `json:"event"`
	Body      json.RawMessage `json:"payload"`
}

func (WebhookDeliveryPayload) Kind() Kind { return KindWebhookDelivery }

// EmailNotificationPayload sends a notification email.
type EmailNotificationPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (EmailNotificationPayload) Kind() Kind { return KindEmailNotification }

// SearchIndexRebuildPayload rebuilds the search index, incrementally or
// from scratch.
type SearchIndexRebuildPayload struct {
	FullRebuild bool `json:"full_rebuild"`
}

func (SearchIndexRebuildPayload) Kind() Kind { return KindSearchIndexRebuild }

// DatabaseCleanupPayload prunes aged rows from a named table.
type DatabaseCleanupPayload struct {
	Table string `json:"table"`
}

func (DatabaseCleanupPayload) Kind() Kind { return KindDatabaseCleanup }

// payloadEnvelope is the stored wire form: the kind tag alongside the
// kind-specific data, so rows stay self-describing.
type payloadEnvelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodePayload serializes a payload into its tagged envelope.
func EncodePayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, errors.NewInvalidRequestError("nil job payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrapf(err, "marshaling %s payload", p.Kind())
	}
	raw, err := json.Marshal(payloadEnvelope{Type: p.Kind(), Data: data})
	if err != nil {
		return nil, errors.Wrapf(err, "marshaling %s envelope", p.Kind())
	}
	return raw, nil
}

// DecodePayload deserializes a tagged envelope into its concrete payload
// type. Unknown kinds and malformed data are invalid-request errors, not
// panics: stored rows may outlive the code that wrote them.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "malformed payload envelope")
	}

	var p Payload
	switch env.Type {
	case KindFileIndexing:
		p = &FileIndexingPayload{}
	case KindThumbnailGeneration:
		p = &ThumbnailGenerationPayload{}
	case KindBackupCreation:
		p = &BackupCreationPayload{}
	case KindVersionCleanup:
		p = &VersionCleanupPayload{}
	case KindWebhookDelivery:
		p = &WebhookDeliveryPayload{}
	case KindEmailNotification:
		p = &EmailNotificationPayload{}
	case KindSearchIndexRebuild:
		p = &SearchIndexRebuildPayload{}
	case KindDatabaseCleanup:
		p = &DatabaseCleanupPayload{}
	default:
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "unknown job kind %q", env.Type)
	}

	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "malformed %s payload data", env.Type)
	}
	return p, nil
}

// Result is what a handler returns on completion. It is stored on the job
// row for Success outcomes.
type Result struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SuccessResult builds a successful result with a human-readable message.
func SuccessResult(message string) *Result {
	return &Result{Success: true, Message: message}
}

// SuccessResultWithData attaches structured output to a successful result.
func SuccessResultWithData(message string, data any) (*Result, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling result data")
	}
	return &Result{Success: true, Message: message, Data: raw}, nil
}

// FailureResult builds a failed result; the worker pool treats it the
// same as a handler error.
func FailureResult(message string) *Result {
	return &Result{Success: false, Message: message}
}
