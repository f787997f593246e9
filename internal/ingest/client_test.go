package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocument() Document {
	return Document{
		TenantID:    "tenant-1",
		Filename:    "radar.pdf",
		RemotePath:  "/04_Manuals/radar.pdf",
		SystemPath:  "04_Manuals",
		Directories: []string{"04_Manuals"},
		DocType:     "manual",
		SystemTag:   "navigation",
		MimeType:    "application/pdf",
	}
}

func TestHTTPSink_Ingest(t *testing.T) {
	var gotDoc Document
	var gotContent []byte
	var gotTenant, gotSignature string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = r.Header.Get("X-Tenant-ID")
		gotSignature = r.Header.Get("X-Tenant-Signature")

		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotContent, err = io.ReadAll(file)
		require.NoError(t, err)
		file.Close()

		require.NoError(t, json.Unmarshal([]byte(r.FormValue("data")), &gotDoc))

		fmt.Fprint(w, `{"doc_id":"doc-123"}`)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, "salt", 30*time.Second)

	docID, err := sink.Ingest(context.Background(), []byte("pdf bytes"), testDocument())
	require.NoError(t, err)
	assert.Equal(t, "doc-123", docID)

	assert.Equal(t, "pdf bytes", string(gotContent))
	assert.Equal(t, "tenant-1", gotTenant)

	expected := sha256.Sum256([]byte("tenant-1" + "salt"))
	assert.Equal(t, hex.EncodeToString(expected[:]), gotSignature)

	assert.Equal(t, "manual", gotDoc.DocType)
	assert.Equal(t, "navigation", gotDoc.SystemTag)
	assert.Equal(t, "onedrive", gotDoc.Source)
}

func TestHTTPSink_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, "unsupported file type")
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, "salt", 30*time.Second)

	_, err := sink.Ingest(context.Background(), []byte("x"), testDocument())
	require.Error(t, err)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.StatusCode)
	assert.Contains(t, rejected.Message, "unsupported")
}

func TestHTTPSink_ServerErrorIsNotRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, "salt", 30*time.Second)

	_, err := sink.Ingest(context.Background(), []byte("x"), testDocument())
	require.Error(t, err)

	var rejected *RejectedError
	assert.False(t, errors.As(err, &rejected), "5xx must stay retryable, not a rejection")
}
