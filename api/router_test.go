package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"modelmap/api/router/handlers"
	"modelmap/core"
	"modelmap/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type stubSource struct {
	channels []models.Channel
	models   map[int64][]string
	updates  []models.ChannelUpdate
}

func (s *stubSource) ListChannels(ctx context.Context) ([]models.Channel, error) {
	return append([]models.Channel(nil), s.channels...), nil
}

func (s *stubSource) FetchModels(ctx context.Context, channelID int64) ([]string, error) {
	if list, ok := s.models[channelID]; ok {
		return list, nil
	}
	return nil, &core.UpstreamError{StatusCode: http.StatusBadGateway, Message: "unreachable"}
}

func (s *stubSource) UpdateChannel(ctx context.Context, update models.ChannelUpdate) error {
	s.updates = append(s.updates, update)
	return nil
}

func newTestAPI(src *stubSource) *handlers.API {
	store := core.NewRuleStore()
	a := &handlers.API{
		Store: store,
		Now:   func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
	if src != nil {
		a.Channels = core.NewChannelService(store, func(ctx context.Context) (core.ChannelSource, error) {
			return src, nil
		}, 2)
	}
	return a
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	h := NewRouter(newTestAPI(nil), "s3cret")

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "ok").Bool())

	rec = do(t, h, http.MethodGet, "/rules", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/rules", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/rules", "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRuleEndpoints(t *testing.T) {
	a := newTestAPI(nil)
	h := NewRouter(a, "")

	rec := do(t, h, http.MethodPost, "/rules", `{"sourceModel":"openai/gpt-4-0613","targetModel":"gpt-4"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "gpt-4", gjson.Get(rec.Body.String(), "data.targetModel").String())

	rec = do(t, h, http.MethodPost, "/rules", `{"sourceModel":"openai/gpt-4-0613","targetModel":"other"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/rules", `{"targetModel":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/rules", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Model names with slashes work both raw and escaped.
	rec = do(t, h, http.MethodPut, "/rules/openai/gpt-4-0613", `{"targetModel":"GPT-4"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	target, _ := a.Store.GetTargetModel("openai/gpt-4-0613")
	assert.Equal(t, "GPT-4", target)

	rec = do(t, h, http.MethodPut, "/rules/missing", `{"targetModel":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/rules/auto-process", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gpt-4", gjson.Get(rec.Body.String(), "data.0.targetModel").String())

	rec = do(t, h, http.MethodPost, "/rules/process-preview", `{"name":"Claude-3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "claude-3", gjson.Get(rec.Body.String(), "data.result").String())

	rec = do(t, h, http.MethodDelete, "/rules/openai%2Fgpt-4-0613", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, a.Store.RuleCount())

	a.Store.AddRule("x", "")
	rec = do(t, h, http.MethodDelete, "/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, a.Store.RuleCount())
}

func TestCustomRuleEndpoints(t *testing.T) {
	a := newTestAPI(nil)
	h := NewRouter(a, "")

	rec := do(t, h, http.MethodPost, "/custom-rules", `{"search":"-preview","replace":""}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := gjson.Get(rec.Body.String(), "data.id").String()
	require.NotEmpty(t, id)

	rec = do(t, h, http.MethodPost, "/custom-rules", `{"replace":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPatch, "/custom-rules/"+id, `{"enabled":false,"priority":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rules := a.Store.CustomRules()
	require.Len(t, rules, 1)
	assert.False(t, rules[0].Enabled)
	assert.Equal(t, 4, rules[0].Priority)

	rec = do(t, h, http.MethodPatch, "/custom-rules/nope", `{"enabled":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/custom-rules/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, a.Store.CustomRules())
}

func TestExclusionEndpoints(t *testing.T) {
	a := newTestAPI(nil)
	h := NewRouter(a, "")

	rec := do(t, h, http.MethodPut, "/exclusions/4", `{"excludedModels":["a","b","a"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a", "b"}, a.Store.GetChannelExclusion(4))

	rec = do(t, h, http.MethodPost, "/exclusions/4/toggle", `{"model":"a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, a.Store.IsModelExcluded(4, "a"))

	rec = do(t, h, http.MethodGet, "/exclusions/4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"b"`)

	rec = do(t, h, http.MethodGet, "/exclusions/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	a := newTestAPI(nil)
	h := NewRouter(a, "")

	rec := do(t, h, http.MethodPut, "/settings/process-config", `{"formatModelName":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ProcessRuleConfig{FormatModelName: true, ToLowerCase: true}, a.Store.ProcessConfig())

	rec = do(t, h, http.MethodPut, "/settings/sync-mode", `{"syncMode":"overwrite"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SyncModeOverwrite, a.Store.SyncMode())

	rec = do(t, h, http.MethodPut, "/settings/sync-mode", `{"syncMode":"merge"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransferEndpoints(t *testing.T) {
	a := newTestAPI(nil)
	h := NewRouter(a, "")
	a.Store.AddRule("a", "A")

	rec := do(t, h, http.MethodGet, "/transfer/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="mapping-rules-2024-06-01.json"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "A", gjson.Get(rec.Body.String(), "rules.0.targetModel").String())
	exported := rec.Body.String()

	rec = do(t, h, http.MethodPost, "/transfer/import?mode=merge", exported)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/transfer/import", `{"rules":[{"sourceModel":"b","targetModel":"B"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "data.imported").Int())
	assert.Equal(t, 2, a.Store.RuleCount(), "default mode is append")

	rec = do(t, h, http.MethodPost, "/transfer/import?mode=overwrite", exported)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.MappingRule{{SourceModel: "a", TargetModel: "A"}}, a.Store.Rules())

	rec = do(t, h, http.MethodPost, "/transfer/import", `{"rules":[{"sourceModel":1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, gjson.Get(rec.Body.String(), "success").Bool())
}

func TestChannelEndpointsUnavailable(t *testing.T) {
	h := NewRouter(newTestAPI(nil), "")
	rec := do(t, h, http.MethodGet, "/channels", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChannelEndpoints(t *testing.T) {
	src := &stubSource{
		channels: []models.Channel{
			{ID: 1, Name: "one", Models: "a1,a2"},
			{ID: 2, Name: "two", Models: "gpt-4", ModelMapping: `{"gpt-4":"gpt-4-0613"}`},
		},
		models: map[int64][]string{1: {"a1", "a2", "b"}},
	}
	a := newTestAPI(src)
	h := NewRouter(a, "")
	a.Store.AddRule("a1", "a")
	a.Store.AddRule("a2", "a")

	rec := do(t, h, http.MethodGet, "/channels", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), gjson.Get(rec.Body.String(), "data.0.id").Int(), "newest channel first")

	rec = do(t, h, http.MethodPost, "/channels/models/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "data.fetched").Int())
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "data.fellBack").Int())

	rec = do(t, h, http.MethodGet, "/channels/2/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gpt-4-0613", gjson.Get(rec.Body.String(), "data.0").String())

	rec = do(t, h, http.MethodGet, "/channels/1/preview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a,b", gjson.Get(rec.Body.String(), "data.models").String())
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "data.conflicts.#").Int())

	rec = do(t, h, http.MethodPost, "/channels/1/apply", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "a", gjson.Get(rec.Body.String(), "data.conflicts.0.targetModel").String())
	assert.Empty(t, src.updates)

	rec = do(t, h, http.MethodPost, "/channels/1/apply?force=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, src.updates, 1)
	assert.Equal(t, "a,b", src.updates[0].Models)

	rec = do(t, h, http.MethodGet, "/channels/99/preview", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/channels/x/preview", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/channels/import-rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	target, ok := a.Store.GetTargetModel("gpt-4-0613")
	assert.True(t, ok)
	assert.Equal(t, "gpt-4", target)
}

func TestSyncEndpointsWithoutPersistence(t *testing.T) {
	h := NewRouter(newTestAPI(nil), "")

	rec := do(t, h, http.MethodGet, "/sync/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, gjson.Get(rec.Body.String(), "data.enabled").Bool())

	rec = do(t, h, http.MethodPost, "/sync/flush", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	h := NewRouter(newTestAPI(nil), "")
	rec := do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
