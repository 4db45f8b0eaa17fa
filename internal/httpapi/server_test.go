package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/carobot/internal/assistant"
	"github.com/ent0n29/carobot/internal/llm"
	"github.com/ent0n29/carobot/internal/memory"
	"github.com/ent0n29/carobot/internal/prompt"
	"github.com/ent0n29/carobot/internal/voice"
)

func newTestServer(t *testing.T, withVoice bool) *httptest.Server {
	t.Helper()
	names := memory.Names{A: "Carola", B: "Guido"}
	backend := memory.NewMemoryBackend()
	profile := memory.Profile{Owner: memory.ParticipantA, Facts: []string{"Me llamo Carola Gentile."}}
	facts := memory.NewFactStore(backend, nil, names, profile, nil)
	mood := memory.NewMoodTracker(backend, nil, 24*time.Hour, nil)
	log := memory.NewConversationLog(backend, nil)

	deps := assistant.Deps{
		Facts:    facts,
		Mood:     mood,
		Log:      log,
		Composer: prompt.NewComposer(prompt.Config{Names: names}, facts, log, mood, nil),
		LLM:      llm.NewMockClient(),
		Names:    names,
	}
	if withVoice {
		mock := voice.NewMockProvider()
		deps.Transcriber = mock
		deps.Synthesizer = mock
	}
	engine, err := assistant.New(assistant.Config{}, deps)
	require.NoError(t, err)

	srv := New(engine, Status{Store: "memory", LLM: "mock", Emotion: "off", Voice: "mock"}, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func decodeBody(t *testing.T, res *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
}

func TestTextTurnAndFacts(t *testing.T) {
	ts := newTestServer(t, false)

	res := postJSON(t, ts.URL+"/v1/turns", map[string]string{"participant": "guido", "text": "me llamo Ana"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var turn turnResponse
	decodeBody(t, res, &turn)
	assert.Equal(t, "Te escuché: me llamo Ana (recuerdo 1 cosas)", turn.Reply)
	assert.False(t, turn.Fallback)

	res = postJSON(t, ts.URL+"/v1/turns", map[string]string{"participant": "b", "text": "No, me llamo Sofía"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	factsRes, err := http.Get(ts.URL + "/v1/participants/Guido/facts")
	require.NoError(t, err)
	defer factsRes.Body.Close()
	require.Equal(t, http.StatusOK, factsRes.StatusCode)
	var body struct {
		Participant string        `json:"participant"`
		Name        string        `json:"name"`
		Facts       []memory.Fact `json:"facts"`
	}
	decodeBody(t, factsRes, &body)
	assert.Equal(t, "b", body.Participant)
	assert.Equal(t, "Guido", body.Name)
	require.Len(t, body.Facts, 1)
	assert.Equal(t, "Me llamo Sofía", body.Facts[0].Text)

	profileRes, err := http.Get(ts.URL + "/v1/participants/a/facts")
	require.NoError(t, err)
	defer profileRes.Body.Close()
	decodeBody(t, profileRes, &body)
	require.Len(t, body.Facts, 1)
	assert.Equal(t, "profile-1", body.Facts[0].ID)
}

func TestTextTurnValidation(t *testing.T) {
	ts := newTestServer(t, false)

	res := postJSON(t, ts.URL+"/v1/turns", map[string]string{"participant": "mario", "text": "hola"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = postJSON(t, ts.URL+"/v1/turns", map[string]string{"participant": "a", "text": "  "})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	var errBody errorResponse
	decodeBody(t, res, &errBody)
	assert.Equal(t, "empty_utterance", errBody.Code)

	raw, err := http.Post(ts.URL+"/v1/turns", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	unknown, err := http.Get(ts.URL + "/v1/participants/nadie/facts")
	require.NoError(t, err)
	defer unknown.Body.Close()
	assert.Equal(t, http.StatusNotFound, unknown.StatusCode)
}

func TestMoodAndConversationEndpoints(t *testing.T) {
	ts := newTestServer(t, false)

	res := postJSON(t, ts.URL+"/v1/turns", map[string]string{"participant": "b", "text": "me siento muy triste"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	moodRes, err := http.Get(ts.URL + "/v1/mood")
	require.NoError(t, err)
	defer moodRes.Body.Close()
	var mood struct {
		Mood *memory.MoodState `json:"mood"`
	}
	decodeBody(t, moodRes, &mood)
	require.NotNil(t, mood.Mood)
	assert.Equal(t, memory.MoodNegative, mood.Mood.Mood)
	assert.False(t, mood.Mood.FollowupAsked)

	convRes, err := http.Get(ts.URL + "/v1/conversation?limit=5")
	require.NoError(t, err)
	defer convRes.Body.Close()
	var conv struct {
		Turns []memory.Turn `json:"turns"`
	}
	decodeBody(t, convRes, &conv)
	require.Len(t, conv.Turns, 1)
	assert.Equal(t, "me siento muy triste", conv.Turns[0].Input)

	for _, limit := range []string{"-1", "0", "abc"} {
		bad, err := http.Get(ts.URL + "/v1/conversation?limit=" + limit)
		require.NoError(t, err)
		var errBody errorResponse
		decodeBody(t, bad, &errBody)
		_ = bad.Body.Close()
		assert.Equal(t, http.StatusBadRequest, bad.StatusCode, limit)
		assert.Equal(t, "invalid_limit", errBody.Code, limit)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, ts.URL+"/v1/conversation", nil)
	require.NoError(t, err)
	delRes, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delRes.Body.Close()
	assert.Equal(t, http.StatusNoContent, delRes.StatusCode)

	after, err := http.Get(ts.URL + "/v1/conversation")
	require.NoError(t, err)
	defer after.Body.Close()
	decodeBody(t, after, &conv)
	assert.Empty(t, conv.Turns)
}

func TestVoiceTurn(t *testing.T) {
	ts := newTestServer(t, true)

	res, err := http.Post(ts.URL+"/v1/turns/voice?participant=b&format=ogg", "audio/ogg", strings.NewReader("vivo en Rosario"))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var turn turnResponse
	decodeBody(t, res, &turn)
	assert.Equal(t, "vivo en Rosario", turn.Transcript)
	audio, err := base64.StdEncoding.DecodeString(turn.AudioBase64)
	require.NoError(t, err)
	assert.Equal(t, turn.Reply, string(audio))
	assert.Equal(t, "txt", turn.AudioFormat)
}

func TestVoiceTurnUnavailable(t *testing.T) {
	ts := newTestServer(t, false)

	res, err := http.Post(ts.URL+"/v1/turns/voice?participant=b", "audio/ogg", strings.NewReader("x"))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, true)

	res, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	ready, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer ready.Body.Close()
	var body struct {
		Status        string `json:"status"`
		Collaborators Status `json:"collaborators"`
		VoiceEnabled  bool   `json:"voice_enabled"`
	}
	decodeBody(t, ready, &body)
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "mock", body.Collaborators.LLM)
	assert.True(t, body.VoiceEnabled)
}
