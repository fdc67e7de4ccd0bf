package opb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedAPI struct {
	searchErr error
	results   []*Plant
	calls     int
}

func (s *scriptedAPI) Search(_ context.Context, _ string) ([]*Plant, error) {
	s.calls++
	return s.results, s.searchErr
}

func (s *scriptedAPI) Details(_ context.Context, _ string) (*Plant, error) {
	return nil, errors.New("not implemented")
}

func TestWrapperNilFactory(t *testing.T) {
	w := NewWrapper(nil, zap.NewNop())

	_, err := w.Search(context.Background(), "monstera")
	assert.ErrorIs(t, err, ErrSDKUnavailable)

	_, err = w.Details(context.Background(), "monstera deliciosa")
	assert.ErrorIs(t, err, ErrSDKUnavailable)
}

func TestWrapperRejectsEmptyQuery(t *testing.T) {
	api := &scriptedAPI{}
	w := NewWrapper(func() (API, error) { return api, nil }, zap.NewNop())

	_, err := w.Search(context.Background(), "   ")
	assert.Error(t, err)
	assert.Zero(t, api.calls)
}

func TestWrapperBuildsClientOnce(t *testing.T) {
	builds := 0
	api := &scriptedAPI{results: []*Plant{{PID: "x"}}}
	w := NewWrapper(func() (API, error) {
		builds++
		return api, nil
	}, zap.NewNop())

	_, err := w.Search(context.Background(), "a")
	require.NoError(t, err)
	_, err = w.Search(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 1, builds)
	assert.Equal(t, 2, api.calls)
}

func TestWrapperResetRebuildsClient(t *testing.T) {
	stale := &scriptedAPI{searchErr: errors.New("401 unauthorized")}
	fresh := &scriptedAPI{results: []*Plant{{PID: "monstera deliciosa"}}}

	current := stale
	builds := 0
	w := NewWrapper(func() (API, error) {
		builds++
		return current, nil
	}, zap.NewNop())

	_, err := w.Search(context.Background(), "monstera")
	require.True(t, IsAuthError(err))

	// Credentials rotated; without a reset the stale client keeps failing.
	current = fresh
	_, err = w.Search(context.Background(), "monstera")
	require.True(t, IsAuthError(err))

	w.Reset()
	results, err := w.Search(context.Background(), "monstera")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, builds)
	assert.Equal(t, 1, fresh.calls)
}

func TestWrapperClassifiesSearchErrors(t *testing.T) {
	api := &scriptedAPI{searchErr: errors.New("401 unauthorized")}
	w := NewWrapper(func() (API, error) { return api, nil }, zap.NewNop())

	_, err := w.Search(context.Background(), "monstera")
	assert.True(t, IsAuthError(err))
}

func TestWrapperPassesThroughOtherErrors(t *testing.T) {
	cause := errors.New("connection reset by peer")
	api := &scriptedAPI{searchErr: cause}
	w := NewWrapper(func() (API, error) { return api, nil }, zap.NewNop())

	_, err := w.Search(context.Background(), "monstera")
	assert.False(t, IsAuthError(err))
	assert.ErrorIs(t, err, cause)
}

func TestWrapperFactoryFailure(t *testing.T) {
	w := NewWrapper(func() (API, error) {
		return nil, errors.New("wrong client id or secret")
	}, zap.NewNop())

	_, err := w.Search(context.Background(), "monstera")
	assert.Error(t, err)
}
