package sentinel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forest-guardian/pdr-calculator/internal/geometry"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testROI(t *testing.T) *geometry.ROI {
	roi, err := geometry.ParseROI([]byte(`{"type":"Polygon","coordinates":[[[90.0,23.0],[90.1,23.0],[90.1,23.1],[90.0,23.1],[90.0,23.0]]]}`))
	require.NoError(t, err)
	return roi
}

func testClient(server *httptest.Server, credentials ...Credential) *Client {
	if len(credentials) == 0 {
		credentials = []Credential{{ClientID: "id", ClientSecret: "secret"}}
	}
	logger, _ := test.NewNullLogger()
	client := NewClient(server.URL, server.URL+"/token", credentials)
	client.Retries = 3
	client.RetryDelay = time.Millisecond
	client.Log = logger
	client.HTTPClient = func(ctx context.Context, tokenURL string, credential Credential) *http.Client {
		return &http.Client{Transport: headerTransport{id: credential.ClientID}}
	}
	return client
}

type headerTransport struct {
	id string
}

func (h headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.Header.Set("X-Client-Id", h.id)
	return http.DefaultTransport.RoundTrip(r)
}

func TestOutputSize(t *testing.T) {
	size := OutputSize(orb.Bound{Min: orb.Point{90, 23}, Max: orb.Point{90.25, 23.125}}, 20)
	assert.Equal(t, Size{Width: 1387, Height: 693}, size)

	tiny := OutputSize(orb.Bound{Min: orb.Point{90, 23}, Max: orb.Point{90, 23}}, 20)
	assert.Equal(t, Size{Width: 1, Height: 1}, tiny)

	huge := OutputSize(orb.Bound{Min: orb.Point{80, 20}, Max: orb.Point{95, 25}}, 20)
	assert.Equal(t, Size{Width: 2500, Height: 2500}, huge)
}

func TestEffectiveResolution(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{90, 23}, Max: orb.Point{92, 24}}
	size := OutputSize(bound, 20)
	require.Equal(t, Size{Width: 2500, Height: 2500}, size)
	assert.InDelta(t, 88.8, EffectiveResolution(bound, size), 1e-9)

	unclamped := orb.Bound{Min: orb.Point{90, 23}, Max: orb.Point{90.25, 23.125}}
	assert.InDelta(t, 6937.5, EffectiveResolution(unclamped, Size{Width: 5, Height: 2}), 1e-9)

	assert.Zero(t, EffectiveResolution(unclamped, Size{}))
}

func TestLeastCloudy(t *testing.T) {
	jan := time.Date(2023, 1, 10, 4, 0, 0, 0, time.UTC)
	feb := time.Date(2023, 2, 10, 4, 0, 0, 0, time.UTC)
	scenes := []Scene{
		{ID: "a", Acquired: feb, CloudCover: 12},
		{ID: "b", Acquired: feb, CloudCover: 0.5},
		{ID: "c", Acquired: jan, CloudCover: 0.5},
	}
	scene, err := LeastCloudy(scenes)
	require.NoError(t, err)
	assert.Equal(t, "c", scene.ID)
	assert.Equal(t, "a", scenes[0].ID, "input is not reordered")

	_, err = LeastCloudy(nil)
	assert.ErrorIs(t, err, ErrNoScene)
}

func TestSceneDay(t *testing.T) {
	scene := Scene{Acquired: time.Date(2023, 3, 5, 4, 27, 11, 0, time.UTC)}
	from, to := scene.Day()
	assert.Equal(t, time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2023, 3, 5, 23, 59, 59, 0, time.UTC), to)
}

func TestFindLeastCloudyScene_Paging(t *testing.T) {
	var requests []catalogRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, catalogPath, r.URL.Path)
		var request catalogRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		requests = append(requests, request)

		if request.Next == 0 {
			w.Write([]byte(`{"type":"FeatureCollection","features":[
				{"id":"S2A_1","properties":{"datetime":"2023-04-01T04:30:00Z","eo:cloud_cover":30.5}},
				{"id":"S2B_2","properties":{"datetime":"2023-05-01T04:30:00Z","eo:cloud_cover":4.2}}
			],"context":{"next":2,"limit":2,"returned":2}}`))
			return
		}
		w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"id":"S2A_3","geometry":{"type":"Polygon","coordinates":[[[89,22],[91,22],[91,24],[89,22]]]},"properties":{"datetime":"2023-06-01T04:30:00Z","eo:cloud_cover":1.1}},
			{"id":"S2A_4","properties":{"datetime":"2023-07-01T04:30:00Z"}}
		],"context":{"limit":2,"returned":2}}`))
	}))
	defer server.Close()

	client := testClient(server)
	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	scene, err := client.FindLeastCloudyScene(context.Background(), testROI(t), from, to)
	require.NoError(t, err)

	assert.Equal(t, "S2A_3", scene.ID)
	assert.Equal(t, 1.1, scene.CloudCover)
	assert.NotNil(t, scene.Footprint)

	require.Len(t, requests, 2)
	assert.Equal(t, []string{CollectionS2L2A}, requests[0].Collections)
	assert.Equal(t, "2023-01-01T00:00:00Z/2023-12-31T00:00:00Z", requests[0].Datetime)
	assert.InDeltaSlice(t, []float64{90, 23, 90.1, 23.1}, requests[0].BBox, 1e-9)
	assert.Equal(t, 2, requests[1].Next)
}

func TestFindLeastCloudyScene_NoScene(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"FeatureCollection","features":[],"context":{"returned":0}}`))
	}))
	defer server.Close()

	now := time.Now()
	_, err := testClient(server).FindLeastCloudyScene(context.Background(), testROI(t), now.AddDate(0, -1, 0), now)
	assert.ErrorIs(t, err, ErrNoScene)
}

func TestSearchScenes_InvalidRange(t *testing.T) {
	client := NewClient("http://unused", "http://unused", []Credential{{"a", "b"}})
	now := time.Now()
	_, err := client.SearchScenes(context.Background(), testROI(t), now, now.AddDate(0, 0, -1))
	assert.Error(t, err)
}

func TestPost_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("tiff"))
	}))
	defer server.Close()

	body, err := testClient(server).post(context.Background(), processPath, "image/tiff", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "tiff", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPost_UnauthorizedRotatesCredential(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Client-Id")
		seen = append(seen, id)
		if id == "first" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := testClient(server, Credential{"first", "x"}, Credential{"second", "y"})
	body, err := client.post(context.Background(), processPath, "", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestPost_BadRequestIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad geometry"}`))
	}))
	defer server.Close()

	client := testClient(server, Credential{"first", "x"}, Credential{"second", "y"})
	_, err := client.post(context.Background(), processPath, "", []byte(`{}`))
	var statusErr StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Status)
	assert.Contains(t, statusErr.Error(), "bad geometry")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPost_ExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := testClient(server).post(context.Background(), processPath, "", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRequestBands_Payload(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, processPath, r.URL.Path)
		assert.Equal(t, "image/tiff", r.Header.Get("Accept"))
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &payload))
		w.Write([]byte("II*\x00"))
	}))
	defer server.Close()

	scene := Scene{ID: "S2A_3", Acquired: time.Date(2023, 6, 1, 4, 30, 0, 0, time.UTC)}
	path := t.TempDir() + "/bands/scene.tif"
	err := testClient(server).DownloadBands(context.Background(), testROI(t), scene, Size{Width: 55, Height: 55}, path)
	require.NoError(t, err)

	input := payload["input"].(map[string]interface{})
	bounds := input["bounds"].(map[string]interface{})
	assert.Equal(t, "Polygon", bounds["geometry"].(map[string]interface{})["type"])
	data := input["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, CollectionS2L2A, data["type"])
	filter := data["dataFilter"].(map[string]interface{})
	assert.Equal(t, "leastCC", filter["mosaickingOrder"])
	timeRange := filter["timeRange"].(map[string]interface{})
	assert.Equal(t, "2023-06-01T00:00:00Z", timeRange["from"])
	assert.Equal(t, "2023-06-01T23:59:59Z", timeRange["to"])
	output := payload["output"].(map[string]interface{})
	assert.Equal(t, 55.0, output["width"])
	assert.Contains(t, payload["evalscript"], `"B04", "B08", "B11", "dataMask"`)
}

func TestNewClientFromEnv(t *testing.T) {
	t.Setenv("COPERNICUS_CLIENT_ID", "")
	t.Setenv("COPERNICUS_CLIENT_SECRET", "")
	_, err := NewClientFromEnv()
	assert.ErrorIs(t, err, ErrMissingCredentials)

	t.Setenv("COPERNICUS_CLIENT_ID", "a,b")
	t.Setenv("COPERNICUS_CLIENT_SECRET", "x")
	_, err = NewClientFromEnv()
	assert.Error(t, err)

	t.Setenv("COPERNICUS_CLIENT_SECRET", "x,y")
	client, err := NewClientFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []Credential{{"a", "x"}, {"b", "y"}}, client.Credentials)
	assert.Equal(t, logrus.StandardLogger(), client.Log)
}
