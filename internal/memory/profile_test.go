package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`participant: A
facts:
  - Me llamo Carola Gentile, nací en Rosario, Argentina.
  - "  "
  - Estudié Bellas Artes.
`), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, ParticipantA, p.Owner)
	require.Len(t, p.Facts, 2)

	facts := p.FactsFor(ParticipantA)
	require.Len(t, facts, 2)
	assert.Equal(t, "profile-1", facts[0].ID)
	assert.Equal(t, "Estudié Bellas Artes.", facts[1].Text)
	assert.Nil(t, p.FactsFor(ParticipantB))
}

func TestLoadProfileRejectsUnknownOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("participant: z\nfacts: [x]\n"), 0o644))

	_, err := LoadProfile(path)
	assert.ErrorIs(t, err, ErrUnknownParticipant)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNamesParse(t *testing.T) {
	n := Names{A: "Carola", B: "Guido"}

	p, err := n.Parse("carola")
	require.NoError(t, err)
	assert.Equal(t, ParticipantA, p)

	p, err = n.Parse(" B ")
	require.NoError(t, err)
	assert.Equal(t, ParticipantB, p)

	_, err = n.Parse("mario")
	assert.ErrorIs(t, err, ErrUnknownParticipant)
	assert.Equal(t, ParticipantA, ParticipantB.Other())
}
