package upload

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fedarchive/genarc/pkg/api"
	"github.com/fedarchive/genarc/pkg/auth"
)

type restFixture struct {
	*fixture
	key    *ecdsa.PrivateKey
	router chi.Router
}

func newRESTFixture(t *testing.T) *restFixture {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	verifier := auth.NewVerifierFromKeys(map[string]crypto.PublicKey{"hub1": &key.PublicKey})

	f := newFixture(t)
	router := chi.NewRouter()
	NewRESTHandler(f.ctrl, verifier).Mount(router)
	return &restFixture{fixture: f, key: key, router: router}
}

// token signs a UOS/WPS token for the given action, bound to a box or file.
func (rf *restFixture) token(t *testing.T, action, boxID, fileID string) string {
	t.Helper()
	claims := auth.ResourceClaims{
		Type:   action,
		BoxID:  boxID,
		FileID: fileID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = "hub1"
	signed, err := token.SignedString(rf.key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func (rf *restFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	rf.router.ServeHTTP(rec, req)
	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorBody {
	t.Helper()
	var body api.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body does not decode: %v (body %s)", err, rec.Body)
	}
	return body
}

func TestRESTBoxLifecycle(t *testing.T) {
	rf := newRESTFixture(t)

	rec := rf.do(t, http.MethodPost, "/boxes", rf.token(t, auth.ActionCreateBox, "", ""),
		map[string]string{"storage_alias": "inbox"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /boxes status = %d, want 201 (body %s)", rec.Code, rec.Body)
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil || created["box_id"] == "" {
		t.Fatalf("POST /boxes body = %s", rec.Body)
	}
	boxID := created["box_id"]

	rec = rf.do(t, http.MethodGet, "/boxes/"+boxID, rf.token(t, auth.ActionViewBox, boxID, ""), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /boxes/{id} status = %d (body %s)", rec.Code, rec.Body)
	}
	var box boxResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &box); err != nil {
		t.Fatal(err)
	}
	if box.BoxID != boxID || box.StorageAlias != "inbox" || box.Locked {
		t.Errorf("box = %+v, want fresh unlocked box", box)
	}

	rec = rf.do(t, http.MethodPatch, "/boxes/"+boxID, rf.token(t, auth.ActionLockBox, boxID, ""),
		map[string]bool{"lock": true})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("PATCH lock status = %d (body %s)", rec.Code, rec.Body)
	}
	rec = rf.do(t, http.MethodGet, "/boxes/"+boxID, rf.token(t, auth.ActionViewBox, boxID, ""), nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &box); err != nil || !box.Locked {
		t.Errorf("box after lock = %+v, want locked", box)
	}

	t.Run("unknown storage alias", func(t *testing.T) {
		rec := rf.do(t, http.MethodPost, "/boxes", rf.token(t, auth.ActionCreateBox, "", ""),
			map[string]string{"storage_alias": "nope"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if body := decodeErrorBody(t, rec); body.ExceptionID != api.ExcNoSuchStorage {
			t.Errorf("exception_id = %q, want %q", body.ExceptionID, api.ExcNoSuchStorage)
		}
	})

	t.Run("missing box", func(t *testing.T) {
		rec := rf.do(t, http.MethodGet, "/boxes/ghost", rf.token(t, auth.ActionViewBox, "ghost", ""), nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		body := decodeErrorBody(t, rec)
		if body.ExceptionID != api.ExcBoxNotFound || body.Data["box_id"] != "ghost" {
			t.Errorf("body = %+v", body)
		}
	})
}

func TestRESTUploadFlow(t *testing.T) {
	rf := newRESTFixture(t)
	boxID := rf.mustCreateBox(t)

	rec := rf.do(t, http.MethodPost, "/boxes/"+boxID+"/uploads",
		rf.token(t, auth.ActionCreateFile, boxID, ""),
		createUploadRequest{Alias: "examplefile001", Checksum: "sha256:abc", Size: 17})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST uploads status = %d (body %s)", rec.Code, rec.Body)
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil || created["file_id"] == "" {
		t.Fatalf("POST uploads body = %s", rec.Body)
	}
	fileID := created["file_id"]

	rec = rf.do(t, http.MethodGet, "/boxes/"+boxID+"/uploads",
		rf.token(t, auth.ActionViewBox, boxID, ""), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET uploads status = %d", rec.Code)
	}
	var listing map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if ids := listing["file_ids"]; len(ids) != 1 || ids[0] != fileID {
		t.Errorf("file_ids = %v, want [%s]", ids, fileID)
	}

	rec = rf.do(t, http.MethodGet, "/boxes/"+boxID+"/uploads/"+fileID+"/parts/1",
		rf.token(t, auth.ActionUploadFile, "", fileID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET parts/1 status = %d (body %s)", rec.Code, rec.Body)
	}
	var part map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &part); err != nil || part["url"] == "" {
		t.Fatalf("parts body = %s", rec.Body)
	}

	t.Run("part number must be positive", func(t *testing.T) {
		rec := rf.do(t, http.MethodGet, "/boxes/"+boxID+"/uploads/"+fileID+"/parts/0",
			rf.token(t, auth.ActionUploadFile, "", fileID), nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("duplicate alias", func(t *testing.T) {
		rec := rf.do(t, http.MethodPost, "/boxes/"+boxID+"/uploads",
			rf.token(t, auth.ActionCreateFile, boxID, ""),
			createUploadRequest{Alias: "examplefile001", Checksum: "sha256:def", Size: 5})
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
		if body := decodeErrorBody(t, rec); body.ExceptionID != api.ExcFileUploadAlreadyExists {
			t.Errorf("exception_id = %q", body.ExceptionID)
		}
	})

	// Push bytes through the storage fake so completion can assemble the object.
	details, err := rf.details.Get(context.Background(), fileID)
	if err != nil {
		t.Fatal(err)
	}
	if err := rf.inbox.UploadPart(details.S3UploadID, 1, []byte("encrypted content")); err != nil {
		t.Fatal(err)
	}

	rec = rf.do(t, http.MethodPatch, "/boxes/"+boxID+"/uploads/"+fileID,
		rf.token(t, auth.ActionCloseFile, "", fileID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("PATCH complete status = %d (body %s)", rec.Code, rec.Body)
	}

	rec = rf.do(t, http.MethodDelete, "/boxes/"+boxID+"/uploads/"+fileID,
		rf.token(t, auth.ActionDeleteFile, "", fileID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE upload status = %d (body %s)", rec.Code, rec.Body)
	}
}

func TestRESTLockedBoxConflict(t *testing.T) {
	rf := newRESTFixture(t)
	boxID := rf.mustCreateBox(t)
	if err := rf.ctrl.LockBox(context.Background(), boxID); err != nil {
		t.Fatal(err)
	}

	rec := rf.do(t, http.MethodPost, "/boxes/"+boxID+"/uploads",
		rf.token(t, auth.ActionCreateFile, boxID, ""),
		createUploadRequest{Alias: "late", Checksum: "sha256:abc", Size: 5})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", rec.Code, rec.Body)
	}
	body := decodeErrorBody(t, rec)
	if body.ExceptionID != api.ExcLockedBox || body.Data["box_id"] != boxID {
		t.Errorf("body = %+v", body)
	}
}

func TestRESTIncompleteUploadsBlockLock(t *testing.T) {
	rf := newRESTFixture(t)
	boxID := rf.mustCreateBox(t)
	fileID := rf.mustInitiate(t, boxID, "pending", 5)

	rec := rf.do(t, http.MethodPatch, "/boxes/"+boxID,
		rf.token(t, auth.ActionLockBox, boxID, ""), map[string]bool{"lock": true})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", rec.Code, rec.Body)
	}
	body := decodeErrorBody(t, rec)
	if body.ExceptionID != api.ExcIncompleteUploads {
		t.Fatalf("exception_id = %q", body.ExceptionID)
	}
	ids, _ := body.Data["file_ids"].([]any)
	if len(ids) != 1 || ids[0] != fileID {
		t.Errorf("file_ids = %v, want [%s]", body.Data["file_ids"], fileID)
	}
}

func TestRESTAuthBinding(t *testing.T) {
	rf := newRESTFixture(t)
	boxID := rf.mustCreateBox(t)

	t.Run("missing token", func(t *testing.T) {
		rec := rf.do(t, http.MethodGet, "/boxes/"+boxID, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("token bound to another box", func(t *testing.T) {
		rec := rf.do(t, http.MethodGet, "/boxes/"+boxID,
			rf.token(t, auth.ActionViewBox, "other-box", ""), nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
		if body := decodeErrorBody(t, rec); body.ExceptionID != api.ExcWrongFileAuthorization {
			t.Errorf("exception_id = %q", body.ExceptionID)
		}
	})

	t.Run("wrong action type", func(t *testing.T) {
		rec := rf.do(t, http.MethodPatch, "/boxes/"+boxID,
			rf.token(t, auth.ActionViewBox, boxID, ""), map[string]bool{"lock": true})
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}
