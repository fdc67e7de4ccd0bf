package opb

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testBaseURL = "https://opb.test/api/v1"

func newMockedClient(t *testing.T) *RESTClient {
	t.Helper()
	c := NewRESTClient("client", "secret", testBaseURL, zap.NewNop())
	httpmock.ActivateNonDefault(c.http)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func registerToken() {
	httpmock.RegisterResponder("POST", testBaseURL+"/token/",
		httpmock.NewJsonResponderOrPanic(200, map[string]any{
			"access_token": "tok123",
			"expires_in":   3600,
		}))
}

func TestRESTClientSearch(t *testing.T) {
	c := newMockedClient(t)
	registerToken()
	httpmock.RegisterResponder("GET", testBaseURL+"/plant/search",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer tok123", req.Header.Get("Authorization"))
			assert.Equal(t, "monstera", req.URL.Query().Get("alias"))
			return httpmock.NewJsonResponse(200, map[string]any{
				"results": []map[string]any{
					{"pid": "monstera deliciosa", "display_pid": "monstera deliciosa", "alias": "swiss cheese plant"},
					{"pid": "monstera adansonii", "display_pid": "monstera adansonii"},
				},
			})
		})

	results, err := c.Search(context.Background(), "monstera")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "monstera deliciosa", results[0].PID)
	assert.Equal(t, "swiss cheese plant", results[0].Alias)
}

func TestRESTClientSearchBareArray(t *testing.T) {
	c := newMockedClient(t)
	registerToken()
	httpmock.RegisterResponder("GET", testBaseURL+"/plant/search",
		httpmock.NewStringResponder(200, `[{"pid":"ficus lyrata"}]`))

	results, err := c.Search(context.Background(), "ficus")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ficus lyrata", results[0].PID)
}

func TestRESTClientSearchSingleObject(t *testing.T) {
	c := newMockedClient(t)
	registerToken()
	httpmock.RegisterResponder("GET", testBaseURL+"/plant/search",
		httpmock.NewStringResponder(200, `{"pid":"ficus lyrata","alias":"fiddle leaf fig"}`))

	results, err := c.Search(context.Background(), "ficus")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fiddle leaf fig", results[0].Alias)
}

func TestRESTClientTokenReuse(t *testing.T) {
	c := newMockedClient(t)
	registerToken()
	httpmock.RegisterResponder("GET", testBaseURL+"/plant/search",
		httpmock.NewStringResponder(200, `[]`))

	_, err := c.Search(context.Background(), "a")
	require.NoError(t, err)
	_, err = c.Search(context.Background(), "b")
	require.NoError(t, err)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+testBaseURL+"/token/"])
	assert.Equal(t, 2, info["GET "+testBaseURL+"/plant/search"])
}

func TestRESTClientTokenRejected(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder("POST", testBaseURL+"/token/",
		httpmock.NewStringResponder(401, `{"error":"invalid_client"}`))

	_, err := c.Search(context.Background(), "monstera")
	require.Error(t, err)
	// The wrapper classifies this; the raw message must carry the marker.
	assert.True(t, IsAuthError(classify(err)))
}

func TestRESTClientDetailCaching(t *testing.T) {
	c := newMockedClient(t)
	registerToken()
	detailURL := testBaseURL + "/plant/detail/monstera%20deliciosa/"
	httpmock.RegisterResponder("GET", detailURL,
		httpmock.NewStringResponder(200, `{"pid":"monstera deliciosa","min_light_lux":500,"max_light_lux":30000}`))

	first, err := c.Details(context.Background(), "monstera deliciosa")
	require.NoError(t, err)
	require.NotNil(t, first.MinLightLux)
	assert.Equal(t, float64(500), *first.MinLightLux)

	second, err := c.Details(context.Background(), "monstera deliciosa")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["GET "+detailURL])
}

func TestRESTClientVerify(t *testing.T) {
	c := newMockedClient(t)
	registerToken()
	assert.NoError(t, c.Verify(context.Background()))
}

func TestRESTClientVerifyBadCredentials(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder("POST", testBaseURL+"/token/",
		httpmock.NewStringResponder(400, `{"error":"invalid_client"}`))

	err := c.Verify(context.Background())
	assert.True(t, IsAuthError(err))
}

func TestDefaultFactoryRejectsEmptyCredentials(t *testing.T) {
	_, err := DefaultFactory("", "", "", zap.NewNop())()
	require.Error(t, err)
	assert.True(t, IsAuthError(classify(err)))
}
