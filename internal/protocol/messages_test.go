package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessageText(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_text","participant":"b","text":"hola"}`))
	require.NoError(t, err)

	text, ok := msg.(ClientText)
	require.True(t, ok, "message type = %T", msg)
	assert.Equal(t, "b", text.Participant)
	assert.Equal(t, "hola", text.Text)
}

func TestParseClientMessageAudio(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_audio","participant":"Guido","audio_base64":"AQID","format":"pcm"}`))
	require.NoError(t, err)

	audio, ok := msg.(ClientAudio)
	require.True(t, ok, "message type = %T", msg)
	assert.Equal(t, "pcm", audio.Format)
}

func TestParseClientMessageControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"reset"}`))
	require.NoError(t, err)
	assert.Equal(t, ClientControl{Type: TypeClientControl, Action: ActionReset}, msg)

	_, err = ParseClientMessage([]byte(`{"type":"client_control","action":"explode"}`))
	assert.Error(t, err)
}

func TestParseClientMessageRejects(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ParseClientMessage([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseClientMessage([]byte(`{"type":"client_text","participant":"b","text":"   "}`))
	assert.Error(t, err)

	_, err = ParseClientMessage([]byte(`{"type":"client_audio","participant":"b"}`))
	assert.Error(t, err)
}

func BenchmarkParseClientMessageText(b *testing.B) {
	raw := []byte(`{"type":"client_text","participant":"b","text":"hoy me siento muy bien"}`)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ParseClientMessage(raw); err != nil {
			b.Fatal(err)
		}
	}
}
