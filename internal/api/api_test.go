package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefgrid/reliefgrid/internal/bus"
	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/model"
	"github.com/reliefgrid/reliefgrid/internal/reconcile"
	"github.com/reliefgrid/reliefgrid/internal/store"
	"github.com/reliefgrid/reliefgrid/pkg/geocode"
)

// fakeResolver maps normalized location names to fixed coordinates.
type fakeResolver struct {
	known map[string]model.Coordinates
}

func (f *fakeResolver) Resolve(_ context.Context, locationName string) (*model.Coordinates, error) {
	coord, ok := f.known[geocode.Normalize(locationName)]
	if !ok {
		return nil, geocode.ErrNotFound
	}
	return &coord, nil
}

type testEnv struct {
	server *httptest.Server
	store  store.Store
	bus    *bus.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))

	resolver := &fakeResolver{known: map[string]model.Coordinates{
		"lower manhattan":    {Lat: 40.70, Lng: -74.00, DisplayName: "Lower Manhattan, New York"},
		"midtown":            {Lat: 40.75, Lng: -73.98, DisplayName: "Midtown, New York"},
		"upstate":            {Lat: 41.00, Lng: -74.00, DisplayName: "Upstate"},
		"riverbank district": {Lat: 40.71, Lng: -74.01, DisplayName: "Riverbank District"},
	}}

	b := bus.New()
	srv := New(st, resolver, b, config.ServerConfig{
		AllowedOrigins:  []string{"*"},
		EventBufferSize: 16,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		b.Close()
		_ = st.Close()
	})
	return &testEnv{server: ts, store: st, bus: b}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeEntity(t *testing.T, resp *http.Response) model.Entity {
	t.Helper()
	defer resp.Body.Close()
	var e model.Entity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e
}

func createPayload(name, location, typ string) map[string]any {
	return map[string]any{"name": name, "location_name": location, "type": typ}
}

func TestAPI_CreateResolvesAndPersists(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/resources/", createPayload("Shelter A", "Lower Manhattan", "shelter"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeEntity(t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.KindResource, created.Kind)
	require.NotNil(t, created.Coord)
	assert.Equal(t, 40.70, created.Coord.Lat)
	assert.Equal(t, "Lower Manhattan, New York", created.Coord.DisplayName)

	stored, err := env.store.GetEntity(context.Background(), model.KindResource, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shelter A", stored.Name)
}

func TestAPI_CreateUnresolvableStoresWithoutPoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/resources/", createPayload("Ghost Depot", "nowhere at all", "supply"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeEntity(t, resp)
	assert.Nil(t, created.Coord, "unresolvable location stores the entity unresolved")
}

func TestAPI_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/resources/", map[string]any{"name": "x"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_NearbyRadius(t *testing.T) {
	env := newTestEnv(t)

	inside := decodeEntity(t, env.do(t, http.MethodPost, "/api/resources/", createPayload("Shelter A", "Lower Manhattan", "shelter")))
	outside := decodeEntity(t, env.do(t, http.MethodPost, "/api/resources/", createPayload("Far Camp", "Upstate", "shelter")))

	resp := env.do(t, http.MethodGet, "/api/resources/nearby?lat=40.71&lng=-74.00&radius=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var results []model.Entity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 1)
	assert.Equal(t, inside.ID, results[0].ID)
	assert.NotEqual(t, outside.ID, results[0].ID)
}

func TestAPI_NearbyWithoutCenterListsAll(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/resources/", createPayload("Shelter A", "Lower Manhattan", "shelter")).Body.Close()
	env.do(t, http.MethodPost, "/api/resources/", createPayload("Ghost Depot", "nowhere at all", "shelter")).Body.Close()

	resp := env.do(t, http.MethodGet, "/api/resources/nearby?type=shelter", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var results []model.Entity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	assert.Len(t, results, 2, "no center degrades to listing, unresolved included")
}

func TestAPI_NearbyRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name  string
		query string
	}{
		{"lat without lng", "lat=40.7"},
		{"unparseable radius", "lat=40.7&lng=-74&radius=wide"},
		{"negative radius", "lat=40.7&lng=-74&radius=-5"},
		{"latitude out of range", "lat=95&lng=-74"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, "/api/resources/nearby?"+tc.query, nil)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestAPI_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)

	created := decodeEntity(t, env.do(t, http.MethodPost, "/api/resources/", createPayload("Shelter A", "Lower Manhattan", "shelter")))

	resp := env.do(t, http.MethodPut, "/api/resources/"+created.ID, createPayload("Shelter A", "Midtown", "shelter"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeEntity(t, resp)
	require.NotNil(t, updated.Coord)
	assert.Equal(t, 40.75, updated.Coord.Lat, "changed location name re-resolves")

	resp = env.do(t, http.MethodDelete, "/api/resources/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/resources/"+created.ID, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_GeocodeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/geocode?q=Lower+Manhattan", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var result geocode.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 40.70, result.Coordinates.Lat)
	assert.Equal(t, "POINT(-74 40.7)", result.CanonicalPoint)

	missing := env.do(t, http.MethodGet, "/api/geocode?q=atlantis", nil)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(missing.Body).Decode(&body))
	assert.Equal(t, "location not found, please try again", body["error"])
}

func TestAPI_UnknownKindIs404(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/vehicles/", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// readSSEEvents collects data payloads from an open SSE stream until n events
// arrive or the deadline passes.
func readSSEEvents(t *testing.T, body *bufio.Reader, n int) []model.MutationEvent {
	t.Helper()
	var events []model.MutationEvent
	deadline := time.After(5 * time.Second)
	lines := make(chan string)
	go func() {
		for {
			line, err := body.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- line
		}
	}()
	for len(events) < n {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed after %d of %d events", len(events), n)
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev model.MutationEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev))
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out after %d of %d events", len(events), n)
		}
	}
	return events
}

func TestAPI_StreamDeliversMutations(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Wait for the subscription before writing.
	require.Eventually(t, func() bool { return env.bus.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	created := decodeEntity(t, env.do(t, http.MethodPost, "/api/resources/", createPayload("Shelter A", "Lower Manhattan", "shelter")))
	env.do(t, http.MethodDelete, "/api/resources/"+created.ID, nil).Body.Close()

	events := readSSEEvents(t, bufio.NewReader(resp.Body), 2)

	assert.Equal(t, model.ActionCreate, events[0].Action)
	require.NotNil(t, events[0].Entity)
	assert.Equal(t, created.ID, events[0].Entity.ID)

	assert.Equal(t, model.ActionDelete, events[1].Action)
	assert.Nil(t, events[1].Entity, "delete events carry only the ID")
	assert.Equal(t, created.ID, events[1].EntityID)
}

func TestAPI_StreamFeedsReconciler(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/stream?kind=resource", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return env.bus.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	created := decodeEntity(t, env.do(t, http.MethodPost, "/api/resources/", createPayload("Shelter A", "Lower Manhattan", "shelter")))

	// A disaster mutation is filtered out by kind before it reaches this
	// viewer.
	env.do(t, http.MethodPost, "/api/disasters/", createPayload("Riverbank flood", "Riverbank District", "flood")).Body.Close()

	r := reconcile.New()
	for _, ev := range readSSEEvents(t, bufio.NewReader(resp.Body), 1) {
		r.Apply(ev)
	}

	require.Equal(t, 1, r.Len())
	got := r.Get(created.ID)
	require.NotNil(t, got)
	assert.Equal(t, "Shelter A", got.Name)
	assert.Equal(t, model.KindResource, got.Kind)
}

func TestAPI_Health(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_ListEmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/disasters/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()), "empty list must serialize as an array, not null")
}
