package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filehaven/filehaven/errors"
	"github.com/filehaven/filehaven/internal/util"
)

func TestEncodeDecodePayload(t *testing.T) {
	payloads := []Payload{
		&FileIndexingPayload{FileID: "f1", FilePath: "/a.txt"},
		&ThumbnailGenerationPayload{FileID: "f2", FilePath: "/b.png"},
		&BackupCreationPayload{BackupID: "bk1", IncludeFiles: true},
		&VersionCleanupPayload{FileID: util.Ptr("f42")},
		&VersionCleanupPayload{FileID: nil},
		&WebhookDeliveryPayload{WebhookID: "wh1", Event: "file.created", Body: json.RawMessage(`{"id":"f1"}`)},
		&EmailNotificationPayload{To: "ops@example.com", Subject: "hi", Body: "body"},
		&SearchIndexRebuildPayload{FullRebuild: true},
		&DatabaseCleanupPayload{Table: "jobs"},
	}

	for _, p := range payloads {
		raw, err := EncodePayload(p)
		require.NoError(t, err, "encoding %s", p.Kind())

		decoded, err := DecodePayload(raw)
		require.NoError(t, err, "decoding %s", p.Kind())
		assert.Equal(t, p.Kind(), decoded.Kind())
		assert.Equal(t, p, decoded)
	}
}

func TestEncodePayloadEnvelopeShape(t *testing.T) {
	raw, err := EncodePayload(&DatabaseCleanupPayload{Table: "jobs"})
	require.NoError(t, err)

	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "database_cleanup", env.Type)
	assert.JSONEq(t, `{"table":"jobs"}`, string(env.Data))
}

func TestDecodePayloadUnknownKind(t *testing.T) {
	_, err := DecodePayload(json.RawMessage(`{"type":"video_transcode","data":{}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestDecodePayloadMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"type":"file_indexing","data":"not an object"}`,
		`{"type":"file_indexing"}`,
	}
	for _, raw := range cases {
		_, err := DecodePayload(json.RawMessage(raw))
		require.Error(t, err, "input %q", raw)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "input %q", raw)
	}
}

func TestIsValidKind(t *testing.T) {
	for _, k := range Kinds() {
		assert.True(t, IsValidKind(string(k)))
	}
	assert.False(t, IsValidKind("video_transcode"))
	assert.False(t, IsValidKind(""))
}

func TestResultConstructors(t *testing.T) {
	ok := SuccessResult("done")
	assert.True(t, ok.Success)
	assert.Equal(t, "done", ok.Message)

	fail := FailureResult("nope")
	assert.False(t, fail.Success)

	withData, err := SuccessResultWithData("indexed", map[string]int{"files": 3})
	require.NoError(t, err)
	assert.True(t, withData.Success)
	assert.JSONEq(t, `{"files":3}`, string(withData.Data))
}
