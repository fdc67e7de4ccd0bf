package wizard

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plantbook/internal/opb"
	"plantbook/internal/plant"
)

func okTester(_ context.Context, _, _ string) error { return nil }

func TestSetupFlowHappyPath(t *testing.T) {
	st := newMemStore()
	st.creds = nil
	flow := NewSetupFlow(st, okTester, t.TempDir(), zap.NewNop())

	res := flow.Begin()
	require.Equal(t, KindForm, res.Kind)
	assert.Equal(t, StepCredentials, res.Step)

	res = flow.SubmitCredentials(context.Background(), "my-client", "my-secret")
	require.Equal(t, KindForm, res.Kind)
	assert.Equal(t, StepImageConfig, res.Step)

	res = flow.SubmitImageConfig(true, "")
	require.Equal(t, KindCreated, res.Kind)
	require.NotNil(t, res.Credentials)
	assert.Equal(t, "my-client", res.Credentials.ClientID)
	assert.True(t, res.Credentials.DownloadImages)
	assert.Equal(t, plant.DefaultImagePath, res.Credentials.DownloadPath)

	stored, ok := st.Credentials()
	require.True(t, ok)
	assert.Equal(t, "my-secret", stored.Secret)
}

func TestSetupFlowAbortsWhenAlreadyConfigured(t *testing.T) {
	flow := NewSetupFlow(newMemStore(), okTester, t.TempDir(), zap.NewNop())

	res := flow.Begin()
	assert.Equal(t, KindAborted, res.Kind)
	assert.Equal(t, AbortAlreadyConfigured, res.Reason)
}

func TestSetupFlowCredentialValidation(t *testing.T) {
	st := newMemStore()
	st.creds = nil
	flow := NewSetupFlow(st, okTester, t.TempDir(), zap.NewNop())

	res := flow.SubmitCredentials(context.Background(), "  ", "secret")
	assert.Equal(t, "client_id_required", res.Errors["base"])

	res = flow.SubmitCredentials(context.Background(), "client", "")
	assert.Equal(t, "secret_required", res.Errors["base"])
}

func TestSetupFlowAuthFailure(t *testing.T) {
	st := newMemStore()
	st.creds = nil
	tester := func(_ context.Context, _, _ string) error {
		return &opb.AuthError{Err: errors.New("invalid_client")}
	}
	flow := NewSetupFlow(st, tester, t.TempDir(), zap.NewNop())

	res := flow.SubmitCredentials(context.Background(), "client", "bad")
	assert.Equal(t, KindForm, res.Kind)
	assert.Equal(t, "invalid_auth", res.Errors["base"])
}

func TestSetupFlowConnectionFailure(t *testing.T) {
	st := newMemStore()
	st.creds = nil
	tester := func(_ context.Context, _, _ string) error {
		return errors.New("connection refused")
	}
	flow := NewSetupFlow(st, tester, t.TempDir(), zap.NewNop())

	res := flow.SubmitCredentials(context.Background(), "client", "secret")
	assert.Equal(t, "cannot_connect", res.Errors["base"])
}

func TestReauthFlowUpdatesInPlace(t *testing.T) {
	st := newMemStore()
	st.creds = &plant.Credentials{
		ClientID:       "old-client",
		Secret:         "old-secret",
		DownloadImages: true,
		DownloadPath:   "www/images/plants/",
	}
	flow := NewReauthFlow(st, okTester, zap.NewNop())

	res := flow.Begin()
	require.Equal(t, KindForm, res.Kind)
	assert.Equal(t, "old-client", res.ClientID)

	res = flow.SubmitCredentials(context.Background(), "new-client", "new-secret")
	require.Equal(t, KindUpdated, res.Kind)

	stored, ok := st.Credentials()
	require.True(t, ok)
	assert.Equal(t, "new-client", stored.ClientID)
	assert.Equal(t, "new-secret", stored.Secret)
	// The image policy survives re-authentication.
	assert.True(t, stored.DownloadImages)
	assert.Equal(t, "www/images/plants/", stored.DownloadPath)
}

func TestOptionsFlowUpdatesImagePolicy(t *testing.T) {
	st := newMemStore()
	scheduler := NewReauthScheduler(func(string) {}, zap.NewNop())
	flow := NewOptionsFlow(st, scheduler, t.TempDir(), zap.NewNop())

	res := flow.Begin()
	require.Equal(t, KindForm, res.Kind)
	assert.Equal(t, StepOptions, res.Step)

	res = flow.Submit(true, "custom/images/")
	require.Equal(t, KindUpdated, res.Kind)
	assert.True(t, res.Credentials.DownloadImages)
	assert.Equal(t, "custom/images/", res.Credentials.DownloadPath)
}

func TestOptionsFlowBlockedByPendingReauth(t *testing.T) {
	st := newMemStore()
	scheduler := NewReauthScheduler(func(string) {}, zap.NewNop())
	scheduler.Schedule("client")
	flow := NewOptionsFlow(st, scheduler, t.TempDir(), zap.NewNop())

	res := flow.Begin()
	assert.Equal(t, KindAborted, res.Kind)
	assert.Equal(t, AbortReauthRequired, res.Reason)
}

func TestResolvePathLegacyMapping(t *testing.T) {
	root := "/config"
	assert.Equal(t, filepath.Join(root, plant.DefaultImagePath),
		resolvePath("/config/www/images/plants/", root))
	assert.Equal(t, filepath.Join(root, "www/images"), resolvePath("www/images", root))
	assert.Equal(t, "/srv/images", resolvePath("/srv/images", root))
}
