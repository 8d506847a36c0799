package media

import (
	"bytes"
	"encoding/xml"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raphaelgruber/sheetcast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parsedNote and parsedScore are the subset of a partwise document the
// tests inspect.
type parsedNote struct {
	Chord    *struct{} `xml:"chord"`
	Rest     *struct{} `xml:"rest"`
	Step     string    `xml:"pitch>step"`
	Alter    int       `xml:"pitch>alter"`
	Octave   int       `xml:"pitch>octave"`
	Duration int       `xml:"duration"`
	Type     string    `xml:"type"`
	Staff    int       `xml:"staff"`
	Ties     []xmlTie  `xml:"tie"`
}

type parsedScore struct {
	Version string `xml:"version,attr"`
	Title   string `xml:"work>work-title"`
	Parts   []struct {
		Measures []struct {
			Number  int          `xml:"number,attr"`
			Notes   []parsedNote `xml:"note"`
			Backups []int        `xml:"backup>duration"`
		} `xml:"measure"`
	} `xml:"part"`
}

func encodeScore(t *testing.T, events []models.NoteEvent, title string) (string, parsedScore) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, EncodeMusicXML(&buf, events, title))

	var score parsedScore
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &score))
	return buf.String(), score
}

func staffDuration(notes []parsedNote, staff int) int {
	total := 0
	for _, n := range notes {
		if n.Staff == staff && n.Chord == nil {
			total += n.Duration
		}
	}
	return total
}

func TestEncodeMusicXML(t *testing.T) {
	doc, score := encodeScore(t, scale, "Scale")

	assert.True(t, strings.HasPrefix(doc, xml.Header))
	assert.Contains(t, doc, "<!DOCTYPE score-partwise")
	assert.Equal(t, "3.1", score.Version)
	assert.Equal(t, "Scale", score.Title)
	require.Len(t, score.Parts, 1)
	require.Len(t, score.Parts[0].Measures, 1)

	m := score.Parts[0].Measures[0]
	assert.Equal(t, 1, m.Number)
	assert.Equal(t, []int{measureDivisions}, m.Backups)
	assert.Equal(t, measureDivisions, staffDuration(m.Notes, 1), "treble staff fills the measure")
	assert.Equal(t, measureDivisions, staffDuration(m.Notes, 2), "bass staff fills the measure")

	first := m.Notes[0]
	assert.Equal(t, "C", first.Step)
	assert.Equal(t, 4, first.Octave)
	assert.Equal(t, 4, first.Duration)
	assert.Equal(t, "quarter", first.Type)
}

func TestEncodeMusicXMLChordsAndAccidentals(t *testing.T) {
	_, score := encodeScore(t, []models.NoteEvent{
		{Pitch: 61, Start: 0, End: 0.5, Hand: models.HandRight},
		{Pitch: 65, Start: 0, End: 0.5, Hand: models.HandRight},
	}, "")

	notes := score.Parts[0].Measures[0].Notes
	require.GreaterOrEqual(t, len(notes), 2)
	assert.Equal(t, "C", notes[0].Step)
	assert.Equal(t, 1, notes[0].Alter)
	assert.Nil(t, notes[0].Chord)
	assert.Equal(t, "F", notes[1].Step)
	assert.NotNil(t, notes[1].Chord)
}

func TestEncodeMusicXMLTiesAcrossBarline(t *testing.T) {
	_, score := encodeScore(t, []models.NoteEvent{
		{Pitch: 72, Start: 1.5, End: 2.5, Hand: models.HandRight},
	}, "Tied")

	measures := score.Parts[0].Measures
	require.Len(t, measures, 2)

	var tied []string
	for _, m := range measures {
		for _, n := range m.Notes {
			if n.Staff == 1 && n.Rest == nil {
				for _, tie := range n.Ties {
					tied = append(tied, tie.Type)
				}
			}
		}
	}
	assert.Equal(t, []string{"start", "stop"}, tied)
}

func TestEncodeMusicXMLEmpty(t *testing.T) {
	_, score := encodeScore(t, nil, "")
	assert.Equal(t, "Transcription", score.Title)
	require.Len(t, score.Parts[0].Measures, 1)

	notes := score.Parts[0].Measures[0].Notes
	require.Len(t, notes, 2)
	for _, n := range notes {
		assert.NotNil(t, n.Rest)
		assert.Equal(t, "whole", n.Type)
	}
}

func TestSplitSpan(t *testing.T) {
	tests := []struct {
		name       string
		start, dur int
		want       []span
	}{
		{"fits", 0, 4, []span{{0, 4}}},
		{"dotted", 0, 6, []span{{0, 6}}},
		{"unrepresentable", 0, 5, []span{{0, 4}, {4, 1}}},
		{"crosses barline", 12, 8, []span{{12, 4}, {16, 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitSpan(tt.start, tt.dur))
		})
	}
}

func TestWriteMusicXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), MusicXMLFile)
	require.NoError(t, WriteMusicXML(path, scale, "Scale"))
	assert.FileExists(t, path)
}
