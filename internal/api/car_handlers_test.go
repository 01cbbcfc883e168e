package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json/v2"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/motorlot-server/internal/auth"
	"github.com/motorlot/motorlot-server/internal/config"
	"github.com/motorlot/motorlot-server/internal/search"
	"github.com/motorlot/motorlot-server/internal/service"
	"github.com/motorlot/motorlot-server/internal/store"
	"github.com/motorlot/motorlot-server/internal/uploads"
)

// testEnvelope mirrors the response envelope for decoding in tests.
type testEnvelope[T any] struct {
	V       int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// carTestServer wraps the API server for handler testing.
type carTestServer struct {
	*Server
	api     humatest.TestAPI
	tokens  *auth.TokenService
	cleanup func()
}

func setupTestServer(t *testing.T) *carTestServer {
	t.Helper()
	return setupTestServerWithUpload(t, config.UploadConfig{
		MaxFiles:      10,
		MaxFileSize:   10 << 20,
		RatePerSecond: 100,
		RateBurst:     100,
	})
}

func setupTestServerWithUpload(t *testing.T, uploadCfg config.UploadConfig) *carTestServer {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "motorlot-api-test-*")
	require.NoError(t, err)

	st, err := store.New(filepath.Join(tmpDir, "db"), nil)
	require.NoError(t, err)

	up, err := uploads.NewStorage(filepath.Join(tmpDir, "uploads"))
	require.NoError(t, err)

	idx, err := search.NewSearchIndex(search.Options{DataPath: filepath.Join(tmpDir, "search")})
	require.NoError(t, err)
	st.SetSearchIndexer(idx)

	authKey, err := auth.LoadOrGenerateKey(tmpDir)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(hex.EncodeToString(authKey), 15*time.Minute)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cars := service.NewCarService(st, up, idx, logger)

	cfg := &config.Config{Upload: uploadCfg}

	s := NewServer(st, cars, up, tokens, cfg, logger)

	cleanup := func() {
		_ = st.Close()
		_ = idx.Close()
		_ = os.RemoveAll(tmpDir)
	}

	return &carTestServer{
		Server:  s,
		api:     humatest.Wrap(t, s.api),
		tokens:  tokens,
		cleanup: cleanup,
	}
}

func (ts *carTestServer) bearerFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := ts.tokens.GenerateAccessToken(userID)
	require.NoError(t, err)
	return "Bearer " + token
}

// multipartFile is a file attachment for multipart test requests.
type multipartFile struct {
	name string
	data []byte
}

// doMultipart sends a multipart request through the full router.
func (ts *carTestServer) doMultipart(t *testing.T, method, path, bearer string, fields map[string]string, files []multipartFile) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for _, f := range files {
		part, err := writer.CreateFormFile("images", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func (ts *carTestServer) createCar(t *testing.T, bearer, title string, files ...multipartFile) CarResponse {
	t.Helper()

	rec := ts.doMultipart(t, http.MethodPost, "/api/v1/cars", bearer, map[string]string{"title": title}, files)
	require.Equal(t, http.StatusCreated, rec.Code, "create failed: %s", rec.Body.String())

	var envelope testEnvelope[CarResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestCreateCar(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	bearer := ts.bearerFor(t, "user-1")

	rec := ts.doMultipart(t, http.MethodPost, "/api/v1/cars", bearer, map[string]string{
		"title":       "2014 Honda Civic",
		"description": "daily driver",
		"tags":        "sedan, manual",
	}, []multipartFile{
		{name: "front.jpg", data: []byte("front-bytes")},
		{name: "rear.png", data: []byte("rear-bytes")},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var envelope testEnvelope[CarResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)

	car := envelope.Data
	assert.Equal(t, "user-1", car.OwnerID)
	assert.Equal(t, "2014 Honda Civic", car.Title)
	assert.Equal(t, []string{"sedan", "manual"}, car.Tags)
	require.Len(t, car.Images, 2)
	for _, ref := range car.Images {
		assert.True(t, strings.HasPrefix(ref, "/uploads/user-1/"), "unexpected ref %q", ref)
	}
}

func TestCreateCar_RequiresAuth(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	rec := ts.doMultipart(t, http.MethodPost, "/api/v1/cars", "", map[string]string{"title": "Civic"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateCar_RateLimitFromConfig(t *testing.T) {
	ts := setupTestServerWithUpload(t, config.UploadConfig{
		MaxFiles:      10,
		MaxFileSize:   10 << 20,
		RatePerSecond: 0.01,
		RateBurst:     1,
	})
	defer ts.cleanup()

	bearer := ts.bearerFor(t, "user-1")

	rec := ts.doMultipart(t, http.MethodPost, "/api/v1/cars", bearer, map[string]string{"title": "Civic"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The single-token burst is spent, the next upload is throttled.
	rec = ts.doMultipart(t, http.MethodPost, "/api/v1/cars", bearer, map[string]string{"title": "Golf"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCreateCar_MissingTitle(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	bearer := ts.bearerFor(t, "user-1")
	rec := ts.doMultipart(t, http.MethodPost, "/api/v1/cars", bearer, map[string]string{"description": "no title"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCars(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	owner := ts.bearerFor(t, "user-1")
	other := ts.bearerFor(t, "user-2")

	ts.createCar(t, owner, "Civic")
	ts.createCar(t, owner, "Accord")
	ts.createCar(t, other, "Golf")

	resp := ts.api.Get("/api/v1/cars", "Authorization: "+owner)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var envelope testEnvelope[CarsResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data.Cars, 2)
	for _, c := range envelope.Data.Cars {
		assert.Equal(t, "user-1", c.OwnerID)
	}
}

func TestListCars_RequiresAuth(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	resp := ts.api.Get("/api/v1/cars")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestGetCar(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	owner := ts.bearerFor(t, "user-1")
	created := ts.createCar(t, owner, "Civic")

	// Any authenticated user can read by ID.
	other := ts.bearerFor(t, "user-2")
	resp := ts.api.Get("/api/v1/cars/"+created.ID, "Authorization: "+other)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var envelope testEnvelope[CarResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, created.ID, envelope.Data.ID)
}

func TestGetCar_NotFound(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	bearer := ts.bearerFor(t, "user-1")
	resp := ts.api.Get("/api/v1/cars/car-missing", "Authorization: "+bearer)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUpdateCar_EmptyFieldsRetained(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	owner := ts.bearerFor(t, "user-1")

	rec := ts.doMultipart(t, http.MethodPost, "/api/v1/cars", owner, map[string]string{
		"title":       "Civic",
		"description": "one owner",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created testEnvelope[CarResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Empty description field must not wipe the stored value.
	rec = ts.doMultipart(t, http.MethodPut, "/api/v1/cars/"+created.Data.ID, owner, map[string]string{
		"title":       "Civic Type R",
		"description": "",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated testEnvelope[CarResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Civic Type R", updated.Data.Title)
	assert.Equal(t, "one owner", updated.Data.Description)
}

func TestUpdateCar_AppendsImages(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	owner := ts.bearerFor(t, "user-1")
	created := ts.createCar(t, owner, "Civic", multipartFile{name: "front.jpg", data: []byte("front")})
	require.Len(t, created.Images, 1)

	rec := ts.doMultipart(t, http.MethodPut, "/api/v1/cars/"+created.ID, owner, nil, []multipartFile{
		{name: "interior.jpg", data: []byte("interior")},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated testEnvelope[CarResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Len(t, updated.Data.Images, 2)
	assert.Equal(t, created.Images[0], updated.Data.Images[0])
}

func TestUpdateCar_NotOwner(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	owner := ts.bearerFor(t, "user-1")
	intruder := ts.bearerFor(t, "user-2")
	created := ts.createCar(t, owner, "Civic")

	rec := ts.doMultipart(t, http.MethodPut, "/api/v1/cars/"+created.ID, intruder, map[string]string{
		"title": "stolen",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteCar(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	owner := ts.bearerFor(t, "user-1")
	created := ts.createCar(t, owner, "Civic")

	resp := ts.api.Delete("/api/v1/cars/"+created.ID, "Authorization: "+owner)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = ts.api.Get("/api/v1/cars/"+created.ID, "Authorization: "+owner)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestDeleteCar_NotOwner(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	owner := ts.bearerFor(t, "user-1")
	intruder := ts.bearerFor(t, "user-2")
	created := ts.createCar(t, owner, "Civic")

	resp := ts.api.Delete("/api/v1/cars/"+created.ID, "Authorization: "+intruder)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ts.api.Get("/api/v1/cars/"+created.ID, "Authorization: "+owner)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestSearchCars(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	owner := ts.bearerFor(t, "user-1")
	other := ts.bearerFor(t, "user-2")

	rec := ts.doMultipart(t, http.MethodPost, "/api/v1/cars", owner, map[string]string{
		"title": "2018 Chevrolet Camaro",
		"tags":  "coupe",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	ts.createCar(t, owner, "2014 Honda Civic")
	ts.createCar(t, other, "Chevrolet Impala")

	resp := ts.api.Get("/api/v1/cars/search?keyword=camaro", "Authorization: "+owner)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var envelope testEnvelope[CarsResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Cars, 1)
	assert.Equal(t, "2018 Chevrolet Camaro", envelope.Data.Cars[0].Title)

	// Tag match.
	resp = ts.api.Get("/api/v1/cars/search?keyword=coupe", "Authorization: "+owner)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Cars, 1)

	// Owner scoping.
	resp = ts.api.Get("/api/v1/cars/search?keyword=chevrolet", "Authorization: "+owner)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Cars, 1)
	assert.Equal(t, "user-1", envelope.Data.Cars[0].OwnerID)
}

func TestServeUpload(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	owner := ts.bearerFor(t, "user-1")
	created := ts.createCar(t, owner, "Civic", multipartFile{name: "front.jpg", data: []byte("front-bytes")})
	require.Len(t, created.Images, 1)

	req := httptest.NewRequest(http.MethodGet, created.Images[0], nil)
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("front-bytes"), body)
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope testEnvelope[HealthResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, "healthy", envelope.Data.Status)
	assert.Equal(t, "up", envelope.Data.Database)
}
