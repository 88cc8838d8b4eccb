package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/habit_events-value/versions/latest":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/habit_events-value/versions":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "JSON", body["schemaType"])
			registered.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]int{"id": 17})
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "habit_events-value", habitChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 17, id)
	require.Equal(t, int32(1), registered.Load())
}

func TestSchemaRegistryReusesLatestVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]int{"id": 3})
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "profile_events-value", profileChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 3, id)
}

func TestSchemaRegistrySurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "habit_events-value", habitChangedSchema)
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestSchemaRegistryRegistersOnNotFoundErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"error_code": 40401, "message": "Subject 'habit_events-value' not found."})
			return
		}
		require.Equal(t, "application/vnd.schemaregistry.v1+json", r.Header.Get("Content-Type"))
		_ = json.NewEncoder(w).Encode(map[string]int{"id": 21})
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL, WithHTTPClient(srv.Client())).
		EnsureSchema(context.Background(), ValueSubject("habit_events"), habitChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 21, id)
}

func TestSchemaRegistryDecodesIncompatibleSchemaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"error_code": 409, "message": "incompatible schema"})
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), ValueSubject("profile_events"), profileChangedSchema)
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, http.StatusConflict, regErr.Status)
	require.Equal(t, 409, regErr.Code)
	require.Equal(t, "incompatible schema", regErr.Message)
	require.NotErrorIs(t, err, ErrSubjectNotFound)
}

func TestValueSubjectFollowsTopicNaming(t *testing.T) {
	require.Equal(t, "habit_events-value", ValueSubject("habit_events"))
	require.Equal(t, "profile_events-value", ValueSubject("profile_events"))
}
