package visibility

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/canopy/internal/model"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
	fail error
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if m.data == nil {
		m.data = map[string]string{}
	}
	m.data[key] = value
	return nil
}

func TestNewUsesFirstRunDefaults(t *testing.T) {
	s := New()

	assert.Equal(t, []model.ComponentKind{
		model.KindTemperature, model.KindHumidity, model.KindEnergy, model.KindAirflow,
	}, s.VisibleKinds())
	assert.Equal(t, Stats{Visible: 4, Total: 6}, s.Stats())
	assert.Equal(t, SelectSome, s.Stats().SelectAll())
}

func TestToggleAll(t *testing.T) {
	s := New()

	require.NoError(t, s.ToggleAll(true))
	st := s.Stats()
	assert.Equal(t, st.Total, st.Visible)
	assert.Equal(t, SelectAll, st.SelectAll())

	require.NoError(t, s.ToggleAll(false))
	st = s.Stats()
	assert.Equal(t, 0, st.Visible)
	assert.Equal(t, SelectNone, st.SelectAll())
	assert.Empty(t, s.VisibleKinds())
}

func TestSetExactReplacesRatherThanUnions(t *testing.T) {
	s := New()
	require.NoError(t, s.ToggleAll(true))

	require.NoError(t, s.SetExact([]model.ComponentKind{model.KindEnergy, model.KindStatus}))

	assert.Equal(t, []model.ComponentKind{model.KindEnergy, model.KindStatus}, s.VisibleKinds())
	assert.Len(t, s.State(), len(model.VisibilityKinds()))
}

func TestSetExactIgnoresKindsOutsideDomain(t *testing.T) {
	s := New()

	require.NoError(t, s.SetExact([]model.ComponentKind{model.KindWeather, model.KindHumidity, "bogus"}))

	assert.Equal(t, []model.ComponentKind{model.KindHumidity}, s.VisibleKinds())
	_, present := s.State()[model.KindWeather]
	assert.False(t, present)
}

func TestToggle(t *testing.T) {
	s := New()

	v, err := s.Toggle(model.KindStatus)
	require.NoError(t, err)
	assert.True(t, v)
	assert.True(t, s.IsVisible(model.KindStatus))

	v, err = s.Toggle(model.KindStatus)
	require.NoError(t, err)
	assert.False(t, v)

	_, err = s.Toggle(model.KindWeather)
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.ErrorIs(t, s.SetVisible("nope", true), ErrUnknownKind)
}

func TestStateIsACopy(t *testing.T) {
	s := New()
	st := s.State()
	st[model.KindEnergyPie] = true

	assert.False(t, s.IsVisible(model.KindEnergyPie))
}

func TestLoadPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	kv := &memKV{}

	s, err := Load(ctx, kv, nil)
	require.NoError(t, err)
	require.NoError(t, s.SetExact([]model.ComponentKind{model.KindEnergyPie}))

	reloaded, err := Load(ctx, kv, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.ComponentKind{model.KindEnergyPie}, reloaded.VisibleKinds())

	var stored map[string]bool
	require.NoError(t, json.Unmarshal([]byte(kv.data[model.VisibilityStorageKey]), &stored))
	assert.Len(t, stored, 6, "the whole map is written under one key")
}

func TestLoadCompletesPartialState(t *testing.T) {
	kv := &memKV{data: map[string]string{
		model.VisibilityStorageKey: `{"status": true, "temperature": false, "pressure": true}`,
	}}

	s, err := Load(context.Background(), kv, nil)
	require.NoError(t, err)

	state := s.State()
	assert.Len(t, state, 6)
	assert.True(t, state[model.KindStatus])
	assert.False(t, state[model.KindTemperature])
	assert.True(t, state[model.KindHumidity], "missing kinds take defaults")
	_, present := state[model.KindPressure]
	assert.False(t, present)
}

func TestLoadIgnoresCorruptState(t *testing.T) {
	kv := &memKV{data: map[string]string{model.VisibilityStorageKey: "{not json"}}

	s, err := Load(context.Background(), kv, nil)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultVisibility(), s.State())
}

func TestPersistFailureKeepsInMemoryChange(t *testing.T) {
	kv := &memKV{fail: errors.New("disk full")}
	s, err := Load(context.Background(), kv, nil)
	require.NoError(t, err)

	err = s.ToggleAll(true)
	assert.ErrorIs(t, err, model.ErrPersistence)
	assert.Equal(t, SelectAll, s.Stats().SelectAll())
}
