package dataset

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-map/internal/db"
)

const sampleJSON = `{
  "stops": {
    "A": {"name": "Alpha", "x": 0, "y": 0},
    "B": {"name": "Bravo", "x": 100, "y": 0}
  },
  "routes": [{"id": "r1", "name": "Line 1", "stops": ["A", "B"]}],
  "vehicles": [{"id": "v1", "routeId": "r1", "position": {"x": 0, "y": 0},
                "currentStopIndex": 0, "nextStopIndex": 0, "speed": 10, "status": "on time"}]
}`

const sampleYAML = `
stops:
  A: {name: Alpha, x: 0, y: 0}
  B: {name: Bravo, x: 100, y: 0}
routes:
  - id: r1
    name: Line 1
    stops: [A, B]
vehicles:
  - id: v1
    routeId: r1
    position: {x: 0, y: 0}
    currentStopIndex: 0
    nextStopIndex: 1
    speed: 10
    status: on time
`

func testLoader() *Loader {
	return NewLoader(5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadJSONFileNormalizes(t *testing.T) {
	d, err := testLoader().Load(context.Background(), writeFile(t, "routes.json", sampleJSON))
	require.NoError(t, err)
	require.Len(t, d.Vehicles, 1)
	assert.Equal(t, 1, d.Vehicles[0].NextStopIndex, "nextStopIndex repaired to follow currentStopIndex")
	assert.Equal(t, "A", d.Stops["A"].ID)
}

func TestLoadYAMLFile(t *testing.T) {
	d, err := testLoader().Load(context.Background(), writeFile(t, "routes.yaml", sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, d.Routes[0].Stops)
	assert.Equal(t, "on time", d.Vehicles[0].Status)
	assert.Equal(t, 10.0, d.Vehicles[0].Speed)
}

func TestLoadBundledDataset(t *testing.T) {
	d, err := testLoader().Load(context.Background(), filepath.Join("..", "..", "data", "routes.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, d.Routes)
	for _, r := range d.Routes {
		_, ok := d.VehicleForRoute(r.ID)
		assert.True(t, ok, "route %s has a vehicle", r.ID)
	}
}

func TestLoadHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/routes.json":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, sampleJSON)
		case "/data/routes":
			w.Header().Set("Content-Type", "application/yaml")
			io.WriteString(w, sampleYAML)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := testLoader()
	d, err := l.Load(context.Background(), srv.URL+"/data/routes.json")
	require.NoError(t, err)
	assert.Len(t, d.Stops, 2)

	d, err = l.Load(context.Background(), srv.URL+"/data/routes")
	require.NoError(t, err)
	assert.Len(t, d.Routes, 1)

	_, err = l.Load(context.Background(), srv.URL+"/missing.json")
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Err.Error(), "status 404")
}

func TestLoadFailures(t *testing.T) {
	l := testLoader()
	tests := map[string]string{
		"missing file": filepath.Join(t.TempDir(), "nope.json"),
		"bad json":     writeFile(t, "broken.json", `{"stops": [`),
		"invalid data": writeFile(t, "invalid.json", `{"stops": {"A": {"name": "A", "x": 500, "y": 0}}, "routes": [], "vehicles": []}`),
		"bad dsn":      "postgres://127.0.0.1:1/none?connect_timeout=1",
	}
	for name, source := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := l.Load(context.Background(), source)
			var le *LoadError
			require.True(t, errors.As(err, &le), "error %v is not a LoadError", err)
			assert.NotEmpty(t, le.Source)
		})
	}
}

func TestLoadSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.db")
	conn, err := db.Open("sqlite://" + path)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = conn.ExecContext(ctx, db.Schema)
	require.NoError(t, err)
	for _, q := range []string{
		`INSERT INTO stops VALUES ('A', 'Alpha', 0, 0), ('B', 'Bravo', 100, 0)`,
		`INSERT INTO routes VALUES ('r1', 'Line 1', 0)`,
		`INSERT INTO route_stops VALUES ('r1', 1, 'A'), ('r1', 2, 'B')`,
		`INSERT INTO vehicles VALUES ('v1', 'r1', 0, 0, 0, 1, 10, 'on time', 0)`,
	} {
		_, err := conn.ExecContext(ctx, q)
		require.NoError(t, err)
	}
	require.NoError(t, conn.Close())

	d, err := testLoader().Load(ctx, "sqlite://"+path)
	require.NoError(t, err)
	assert.Equal(t, "Bravo", d.Stops["B"].Name)
	assert.Equal(t, "v1", d.Vehicles[0].ID)
}

func TestLoadErrorRedactsPassword(t *testing.T) {
	err := &LoadError{Source: describe("postgres://u:secret@h/db"), Err: errors.New("x")}
	assert.NotContains(t, err.Error(), "secret")
}
