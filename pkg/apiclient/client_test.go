package apiclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerTokenIsSent(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"box_id": "box-1"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).WithToken("secret-token").CreateBox("inbox")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestBoxOperations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /boxes", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "inbox", req["storage_alias"])
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"box_id": "box-1"})
	})
	mux.HandleFunc("GET /boxes/box-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Box{BoxID: "box-1", StorageAlias: "inbox", Locked: true, FileCount: 2})
	})
	mux.HandleFunc("PATCH /boxes/box-1", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]bool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req["lock"])
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /boxes/box-1/uploads", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string][]string{"file_ids": {"examplefile001"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)

	boxID, err := c.CreateBox("inbox")
	require.NoError(t, err)
	assert.Equal(t, "box-1", boxID)

	box, err := c.GetBox("box-1")
	require.NoError(t, err)
	assert.True(t, box.Locked)
	assert.EqualValues(t, 2, box.FileCount)

	require.NoError(t, c.SetBoxLock("box-1", true))

	ids, err := c.ListUploads("box-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"examplefile001"}, ids)
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"exception_id": "boxNotFound",
			"description":  "box box-9 does not exist",
			"data":         map[string]any{"box_id": "box-9"},
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetBox("box-9")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boxNotFound", apiErr.ExceptionID)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "box-9", apiErr.Data["box_id"])
	assert.Contains(t, apiErr.Error(), "boxNotFound")
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetRegisteredFile("EGAF001")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Contains(t, apiErr.Description, "bad gateway")
}

func TestGetObjectStaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetObject("examplefile001")
	require.Error(t, err)

	var staging *ObjectStagingError
	require.ErrorAs(t, err, &staging)
	assert.Equal(t, "examplefile001", staging.ObjectID)
	assert.Equal(t, 5*time.Second, staging.RetryAfter)
}

func TestGetObjectResolved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ga4gh/drs/v1/objects/examplefile001", r.URL.Path)
		_ = json.NewEncoder(w).Encode(DrsObject{
			ID:   "examplefile001",
			Size: 12345,
			Checksums: []DrsChecksum{
				{Checksum: "0677de3c", Type: "sha-256"},
			},
			AccessMethods: []AccessMethod{
				{Type: "s3", AccessURL: AccessURL{URL: "https://outbox.example/presigned"}},
			},
		})
	}))
	defer srv.Close()

	obj, err := New(srv.URL).GetObject("examplefile001")
	require.NoError(t, err)
	assert.EqualValues(t, 12345, obj.Size)
	require.Len(t, obj.AccessMethods, 1)
	assert.Equal(t, "s3", obj.AccessMethods[0].Type)

	var staging *ObjectStagingError
	assert.False(t, errors.As(err, &staging))
}

func TestStoreAccessions(t *testing.T) {
	var got map[string][]AccessionPair
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := New(srv.URL).StoreAccessions([]AccessionPair{
		{Accession: "EGAF001", FileID: "examplefile001"},
	})
	require.NoError(t, err)
	require.Len(t, got["accessions"], 1)
	assert.Equal(t, "EGAF001", got["accessions"][0].Accession)
}
