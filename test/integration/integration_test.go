package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plantbook/internal/api"
	"plantbook/internal/ha"
	"plantbook/internal/images"
	"plantbook/internal/opb"
	"plantbook/internal/store"
	"plantbook/internal/wizard"
)

type testEnv struct {
	opbServer  *MockOPBServer
	httpServer *httptest.Server
	store      store.Store
	publisher  *ha.MockPublisher
	scheduler  *wizard.ReauthScheduler
	configRoot string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	opbServer := NewMockOPBServer()
	t.Cleanup(opbServer.Close)

	st, err := store.OpenFileStore(filepath.Join(t.TempDir(), "store.json"), logger)
	require.NoError(t, err)

	scheduler := wizard.NewReauthScheduler(func(string) {}, logger)
	publisher := ha.NewMockPublisher()
	configRoot := t.TempDir()
	fetcher := images.NewFetcher(logger)

	wrapper := opb.NewWrapper(func() (opb.API, error) {
		creds, ok := st.Credentials()
		if !ok {
			return nil, opb.ErrSDKUnavailable
		}
		return opb.DefaultFactory(creds.ClientID, creds.Secret, opbServer.URL(), logger)()
	}, logger)

	tester := func(ctx context.Context, clientID, secret string) error {
		return opb.NewRESTClient(clientID, secret, opbServer.URL(), logger).Verify(ctx)
	}

	deps := api.Deps{
		Store:     st,
		Publisher: publisher,
		Scheduler: scheduler,
		ResetAPI:  wrapper.Reset,
		NewSetup: func() *wizard.SetupFlow {
			return wizard.NewSetupFlow(st, tester, configRoot, logger)
		},
		NewReauth: func() *wizard.SetupFlow {
			return wizard.NewReauthFlow(st, tester, logger)
		},
		NewPlantFlow: func() *wizard.PlantFlow {
			return wizard.NewPlantFlow(st, wrapper, fetcher, scheduler, configRoot, logger)
		},
		NewOptionsFlow: func() *wizard.OptionsFlow {
			return wizard.NewOptionsFlow(st, scheduler, configRoot, logger)
		},
	}

	srv := api.NewServer(deps, logger, ":0")
	httpServer := httptest.NewServer(srv.Handler())
	t.Cleanup(httpServer.Close)

	return &testEnv{
		opbServer:  opbServer,
		httpServer: httpServer,
		store:      st,
		publisher:  publisher,
		scheduler:  scheduler,
		configRoot: configRoot,
	}
}

type wireResult struct {
	SessionID       string            `json:"session_id"`
	Kind            string            `json:"kind"`
	Step            string            `json:"step"`
	Errors          map[string]string `json:"errors"`
	Defaults        map[string]any    `json:"defaults"`
	Options         []map[string]any  `json:"options"`
	CategoryOptions []string          `json:"category_options"`
	Reason          string            `json:"reason"`
	Record          map[string]any    `json:"record"`
}

func (e *testEnv) post(t *testing.T, path string, body any) wireResult {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(e.httpServer.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res wireResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

// runSetup walks the credential wizard to completion.
func (e *testEnv) runSetup(t *testing.T, downloadImages bool) {
	t.Helper()
	res := e.post(t, "/api/wizard/setup", nil)
	require.Equal(t, "form", res.Kind)

	res = e.post(t, "/api/wizard/setup/"+res.SessionID+"/credentials",
		map[string]string{"client_id": testClientID, "secret": testSecret})
	require.Equal(t, "form", res.Kind, "errors: %v", res.Errors)

	res = e.post(t, "/api/wizard/setup/"+res.SessionID+"/image_config",
		map[string]any{"download_images": downloadImages})
	require.Equal(t, "created", res.Kind)
}

func TestSetupThenPlantCreation(t *testing.T) {
	env := setupEnv(t)
	env.opbServer.AddPlant(map[string]any{
		"pid":           "monstera deliciosa",
		"display_pid":   "monstera deliciosa",
		"alias":         "swiss cheese plant",
		"category":      "tropical",
		"min_light_lux": 500, "max_light_lux": 30000,
		"min_temp": 12, "max_temp": 32,
		"min_env_humid": 30, "max_env_humid": 85,
		"min_soil_moist": 15, "max_soil_moist": 60,
		"min_soil_ec": 350, "max_soil_ec": 2000,
	})

	env.runSetup(t, false)

	res := env.post(t, "/api/wizard/plant", nil)
	require.Equal(t, "plant_name", res.Step)
	sessionID := res.SessionID

	res = env.post(t, "/api/wizard/plant/"+sessionID+"/name", map[string]string{"name": "monstera"})
	require.Equal(t, "configure_plant", res.Step, "errors: %v", res.Errors)
	// Identity comes from the search result, care ranges from the detail
	// lookup.
	assert.Equal(t, "Monstera Deliciosa", res.Defaults["scientific_name"])
	assert.Equal(t, float64(500), res.Defaults["min_light"])

	res = env.post(t, "/api/wizard/plant/"+sessionID+"/configure", res.Defaults)
	require.Equal(t, "created", res.Kind, "errors: %v", res.Errors)
	assert.Equal(t, "monstera_deliciosa", res.Record["device_id"])

	// The record is persisted and announced.
	rec, ok := env.store.Get("monstera_deliciosa")
	require.True(t, ok)
	assert.Equal(t, "monstera deliciosa", rec.PlantID)
	require.Len(t, env.publisher.Published(), 1)

	tokens, searches, details, _ := env.opbServer.Calls()
	assert.GreaterOrEqual(t, tokens, 1)
	assert.Equal(t, 1, searches)
	assert.Equal(t, 1, details)
}

func TestPlantCreationWithImageDownload(t *testing.T) {
	env := setupEnv(t)
	env.opbServer.AddPlant(map[string]any{
		"pid":           "ficus lyrata",
		"display_pid":   "ficus lyrata",
		"alias":         "fiddle leaf fig",
		"category":      "ficus",
		"image_url":     env.opbServer.URL() + "/img/ficus%20lyrata.jpg",
		"min_light_lux": 1000, "max_light_lux": 25000,
		"min_temp": 15, "max_temp": 30,
		"min_env_humid": 30, "max_env_humid": 80,
		"min_soil_moist": 15, "max_soil_moist": 55,
		"min_soil_ec": 350, "max_soil_ec": 2000,
	})

	env.runSetup(t, true)

	res := env.post(t, "/api/wizard/plant", nil)
	res = env.post(t, "/api/wizard/plant/"+res.SessionID+"/name", map[string]string{"name": "ficus"})
	require.Equal(t, "configure_plant", res.Step)
	sessionID := res.SessionID
	res = env.post(t, "/api/wizard/plant/"+sessionID+"/configure", res.Defaults)
	require.Equal(t, "created", res.Kind, "errors: %v", res.Errors)

	// The image landed under the config root's www directory and the
	// record points at its /local/ URL.
	picture, _ := res.Record["entity_picture"].(string)
	assert.Equal(t, "/local/images/plants/ficus lyrata.jpg", picture)

	onDisk := filepath.Join(env.configRoot, "www/images/plants", "ficus lyrata.jpg")
	data, err := os.ReadFile(onDisk)
	require.NoError(t, err)
	assert.Equal(t, "fake-jpeg-bytes", string(data))

	_, _, _, imageCalls := env.opbServer.Calls()
	assert.Equal(t, 1, imageCalls)
}

func TestBadCredentialsRejectedAtSetup(t *testing.T) {
	env := setupEnv(t)

	res := env.post(t, "/api/wizard/setup", nil)
	res = env.post(t, "/api/wizard/setup/"+res.SessionID+"/credentials",
		map[string]string{"client_id": "wrong", "secret": "wrong"})
	require.Equal(t, "form", res.Kind)
	assert.Equal(t, "invalid_auth", res.Errors["base"])
}

func TestAuthFailureDuringSearchSchedulesReauth(t *testing.T) {
	env := setupEnv(t)
	env.runSetup(t, false)

	// Credentials revoked after setup: the next search hits a 401.
	env.opbServer.RejectTokens(true)

	res := env.post(t, "/api/wizard/plant", nil)
	res = env.post(t, "/api/wizard/plant/"+res.SessionID+"/name", map[string]string{"name": "monstera"})
	require.Equal(t, "aborted", res.Kind)
	assert.Equal(t, "reauth_required", res.Reason)
	assert.True(t, env.scheduler.Pending(testClientID))

	// A new plant session is blocked until re-auth completes.
	res = env.post(t, "/api/wizard/plant", nil)
	assert.Equal(t, "aborted", res.Kind)
	assert.Equal(t, "reauth_required", res.Reason)

	// Re-auth with working credentials clears the block.
	env.opbServer.RejectTokens(false)
	res = env.post(t, "/api/wizard/reauth", nil)
	require.Equal(t, "form", res.Kind)
	res = env.post(t, "/api/wizard/setup/"+res.SessionID+"/credentials",
		map[string]string{"client_id": testClientID, "secret": testSecret})
	require.Equal(t, "updated", res.Kind)
	assert.False(t, env.scheduler.Pending(testClientID))
}

func TestRotatedCredentialsTakeEffectWithoutRestart(t *testing.T) {
	env := setupEnv(t)
	env.opbServer.AddPlant(map[string]any{
		"pid":           "monstera deliciosa",
		"display_pid":   "monstera deliciosa",
		"alias":         "swiss cheese plant",
		"category":      "tropical",
		"min_light_lux": 500, "max_light_lux": 30000,
		"min_temp": 12, "max_temp": 32,
		"min_env_humid": 30, "max_env_humid": 85,
		"min_soil_moist": 15, "max_soil_moist": 60,
		"min_soil_ec": 350, "max_soil_ec": 2000,
	})
	env.runSetup(t, false)

	// A first search builds and caches the API client.
	res := env.post(t, "/api/wizard/plant", nil)
	res = env.post(t, "/api/wizard/plant/"+res.SessionID+"/name", map[string]string{"name": "monstera"})
	require.Equal(t, "configure_plant", res.Step, "errors: %v", res.Errors)

	// The provider rotates the credentials, revoking the old client id and
	// every token issued to it.
	env.opbServer.RotateCredentials("rotated-id", "rotated-secret")

	res = env.post(t, "/api/wizard/plant", nil)
	res = env.post(t, "/api/wizard/plant/"+res.SessionID+"/name", map[string]string{"name": "monstera"})
	require.Equal(t, "aborted", res.Kind)
	require.Equal(t, "reauth_required", res.Reason)
	require.True(t, env.scheduler.Pending(testClientID))

	res = env.post(t, "/api/wizard/reauth", nil)
	require.Equal(t, "form", res.Kind)
	res = env.post(t, "/api/wizard/setup/"+res.SessionID+"/credentials",
		map[string]string{"client_id": "rotated-id", "secret": "rotated-secret"})
	require.Equal(t, "updated", res.Kind, "errors: %v", res.Errors)
	require.False(t, env.scheduler.Pending(testClientID))

	// The next search authenticates with the stored rotated credentials
	// immediately, without restarting the service.
	res = env.post(t, "/api/wizard/plant", nil)
	res = env.post(t, "/api/wizard/plant/"+res.SessionID+"/name", map[string]string{"name": "monstera"})
	require.Equal(t, "configure_plant", res.Step, "errors: %v", res.Errors)
}

func TestNoResultsManualEntryEndToEnd(t *testing.T) {
	env := setupEnv(t)
	env.runSetup(t, false)

	res := env.post(t, "/api/wizard/plant", nil)
	sessionID := res.SessionID
	res = env.post(t, "/api/wizard/plant/"+sessionID+"/name", map[string]string{"name": "unknown plant"})
	require.Equal(t, "no_results_found", res.Step)
	require.Len(t, res.Options, 2)

	res = env.post(t, "/api/wizard/plant/"+sessionID+"/choice", map[string]string{"action": "manual_entry"})
	require.Equal(t, "configure_plant", res.Step)
	assert.Equal(t, "Unknown Plant", res.Defaults["scientific_name"])

	in := res.Defaults
	in["common_name"] = "Mystery Fern"
	in["categories"] = []string{"Indoor"}
	for _, k := range []string{"min_light", "min_temp", "min_humidity", "min_moisture", "min_soil_ec"} {
		in[k] = 10
	}
	for _, k := range []string{"max_light", "max_temp", "max_humidity", "max_moisture", "max_soil_ec"} {
		in[k] = 100
	}

	res = env.post(t, "/api/wizard/plant/"+sessionID+"/configure", in)
	require.Equal(t, "created", res.Kind, "errors: %v", res.Errors)
	assert.Equal(t, "unknown_plant", res.Record["device_id"])
}
