package media

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/raphaelgruber/sheetcast/internal/models"
)

// Notation layout: 4/4 at 120 BPM with sixteenth-note resolution.
const (
	divisionsPerQuarter = 4
	beatsPerMeasure     = 4
	measureDivisions    = divisionsPerQuarter * beatsPerMeasure
	notationTempo       = 120
	divisionsPerSecond  = divisionsPerQuarter * notationTempo / 60
)

const musicXMLDoctype = `<!DOCTYPE score-partwise PUBLIC "-//Recordare//DTD MusicXML 3.1 Partwise//EN" "http://www.musicxml.org/dtds/partwise.dtd">` + "\n"

type scorePartwise struct {
	XMLName        xml.Name          `xml:"score-partwise"`
	Version        string            `xml:"version,attr"`
	Work           xmlWork           `xml:"work"`
	Identification xmlIdentification `xml:"identification"`
	PartList       xmlPartList       `xml:"part-list"`
	Parts          []xmlPart         `xml:"part"`
}

type xmlWork struct {
	Title string `xml:"work-title"`
}

type xmlIdentification struct {
	Software string `xml:"encoding>software"`
}

type xmlPartList struct {
	ScoreParts []xmlScorePart `xml:"score-part"`
}

type xmlScorePart struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"part-name"`
}

type xmlPart struct {
	ID       string       `xml:"id,attr"`
	Measures []xmlMeasure `xml:"measure"`
}

// xmlMeasure holds notes, rests and backups in document order.
type xmlMeasure struct {
	Number int   `xml:"number,attr"`
	Items  []any // *xmlAttributes, *xmlSound, *xmlNote, *xmlBackup
}

type xmlAttributes struct {
	XMLName   xml.Name  `xml:"attributes"`
	Divisions int       `xml:"divisions"`
	Fifths    int       `xml:"key>fifths"`
	Beats     int       `xml:"time>beats"`
	BeatType  int       `xml:"time>beat-type"`
	Staves    int       `xml:"staves"`
	Clefs     []xmlClef `xml:"clef"`
}

type xmlClef struct {
	Number int    `xml:"number,attr"`
	Sign   string `xml:"sign"`
	Line   int    `xml:"line"`
}

type xmlSound struct {
	XMLName xml.Name `xml:"sound"`
	Tempo   int      `xml:"tempo,attr"`
}

type xmlBackup struct {
	XMLName  xml.Name `xml:"backup"`
	Duration int      `xml:"duration"`
}

type xmlNote struct {
	XMLName   xml.Name      `xml:"note"`
	Chord     *struct{}     `xml:"chord,omitempty"`
	Rest      *struct{}     `xml:"rest,omitempty"`
	Pitch     *xmlPitch     `xml:"pitch,omitempty"`
	Duration  int           `xml:"duration"`
	Ties      []xmlTie      `xml:"tie,omitempty"`
	Voice     int           `xml:"voice"`
	Type      string        `xml:"type"`
	Dot       *struct{}     `xml:"dot,omitempty"`
	Staff     int           `xml:"staff"`
	Notations *xmlNotations `xml:"notations,omitempty"`
}

type xmlPitch struct {
	Step   string `xml:"step"`
	Alter  int    `xml:"alter,omitempty"`
	Octave int    `xml:"octave"`
}

type xmlTie struct {
	Type string `xml:"type,attr"`
}

type xmlNotations struct {
	Tied []xmlTie `xml:"tied"`
}

// chord is a group of pitches sounding over [start, start+dur) divisions.
type chord struct {
	start, dur int
	pitches    []int
}

// span is a notatable piece of a chord or rest after splitting at barlines.
type span struct {
	start, dur int
}

var (
	pitchSteps  = [12]string{"C", "C", "D", "D", "E", "F", "F", "G", "G", "A", "A", "B"}
	pitchAlters = [12]int{0, 1, 0, 1, 0, 0, 1, 0, 1, 0, 1, 0}
	// noteValues lists notatable durations in divisions, longest first.
	noteValues = []int{16, 12, 8, 6, 4, 3, 2, 1}
)

// staffLayout maps a hand to its staff and voice.
var staffLayout = []struct {
	hand         string
	staff, voice int
}{
	{models.HandRight, 1, 1},
	{models.HandLeft, 2, 5},
}

// WriteMusicXML writes events as a single-part grand staff score.
func WriteMusicXML(path string, events []models.NoteEvent, title string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create musicxml: %w", err)
	}
	if err := EncodeMusicXML(f, events, title); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeMusicXML writes a MusicXML 3.1 partwise document to w.
func EncodeMusicXML(w io.Writer, events []models.NoteEvent, title string) error {
	if title == "" {
		title = "Transcription"
	}

	staves := make([][]chord, len(staffLayout))
	total := measureDivisions
	for i, sl := range staffLayout {
		staves[i] = buildChords(events, sl.hand)
		if n := len(staves[i]); n > 0 {
			total = max(total, staves[i][n-1].start+staves[i][n-1].dur)
		}
	}
	numMeasures := (total + measureDivisions - 1) / measureDivisions

	measures := make([]xmlMeasure, numMeasures)
	for m := range measures {
		measures[m].Number = m + 1
	}
	measures[0].Items = append(measures[0].Items,
		&xmlAttributes{
			Divisions: divisionsPerQuarter,
			Beats:     beatsPerMeasure,
			BeatType:  4,
			Staves:    2,
			Clefs: []xmlClef{
				{Number: 1, Sign: "G", Line: 2},
				{Number: 2, Sign: "F", Line: 4},
			},
		},
		&xmlSound{Tempo: notationTempo},
	)

	for i, sl := range staffLayout {
		if i > 0 {
			for m := range measures {
				measures[m].Items = append(measures[m].Items, &xmlBackup{Duration: measureDivisions})
			}
		}
		emitStaff(measures, staves[i], numMeasures*measureDivisions, sl.staff, sl.voice)
	}

	score := scorePartwise{
		Version:        "3.1",
		Work:           xmlWork{Title: title},
		Identification: xmlIdentification{Software: "sheetcast"},
		PartList:       xmlPartList{ScoreParts: []xmlScorePart{{ID: "P1", Name: "Piano"}}},
		Parts:          []xmlPart{{ID: "P1", Measures: measures}},
	}

	if _, err := io.WriteString(w, xml.Header+musicXMLDoctype); err != nil {
		return fmt.Errorf("write musicxml: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(score); err != nil {
		return fmt.Errorf("encode musicxml: %w", err)
	}
	return nil
}

// buildChords groups the notes of one hand by onset and truncates each chord
// at the next onset so a staff holds a single voice.
func buildChords(events []models.NoteEvent, hand string) []chord {
	byStart := make(map[int]*chord)
	for _, e := range events {
		h := e.Hand
		if h == "" {
			h = models.HandRight
			if e.Pitch < models.MiddleC {
				h = models.HandLeft
			}
		}
		if h != hand {
			continue
		}
		start := toDivisions(e.Start)
		dur := max(toDivisions(e.End)-start, 1)
		c, ok := byStart[start]
		if !ok {
			c = &chord{start: start}
			byStart[start] = c
		}
		c.dur = max(c.dur, dur)
		c.pitches = append(c.pitches, e.Pitch)
	}

	chords := make([]chord, 0, len(byStart))
	for _, c := range byStart {
		sort.Ints(c.pitches)
		chords = append(chords, *c)
	}
	sort.Slice(chords, func(i, j int) bool { return chords[i].start < chords[j].start })
	for i := 0; i+1 < len(chords); i++ {
		if next := chords[i+1].start; chords[i].start+chords[i].dur > next {
			chords[i].dur = next - chords[i].start
		}
	}
	return chords
}

// emitStaff appends the chords of one staff to measures, filling gaps up to
// end with rests.
func emitStaff(measures []xmlMeasure, chords []chord, end, staff, voice int) {
	cursor := 0
	for _, c := range chords {
		if c.start > cursor {
			emit(measures, nil, cursor, c.start-cursor, staff, voice)
		}
		emit(measures, c.pitches, c.start, c.dur, staff, voice)
		cursor = c.start + c.dur
	}
	if cursor < end {
		emit(measures, nil, cursor, end-cursor, staff, voice)
	}
}

// emit writes a chord (or a rest when pitches is empty) split into notatable
// pieces, tying the pieces of a chord together.
func emit(measures []xmlMeasure, pitches []int, start, dur, staff, voice int) {
	pieces := splitSpan(start, dur)
	for i, p := range pieces {
		m := p.start / measureDivisions
		typ, dotted := noteType(p.dur)

		if len(pitches) == 0 {
			measures[m].Items = append(measures[m].Items, &xmlNote{
				Rest: &struct{}{}, Duration: p.dur, Voice: voice, Type: typ, Dot: dot(dotted), Staff: staff,
			})
			continue
		}

		var ties []xmlTie
		if i > 0 {
			ties = append(ties, xmlTie{Type: "stop"})
		}
		if i < len(pieces)-1 {
			ties = append(ties, xmlTie{Type: "start"})
		}
		for k, pitch := range pitches {
			n := &xmlNote{
				Pitch:    midiPitch(pitch),
				Duration: p.dur,
				Ties:     ties,
				Voice:    voice,
				Type:     typ,
				Dot:      dot(dotted),
				Staff:    staff,
			}
			if k > 0 {
				n.Chord = &struct{}{}
			}
			if len(ties) > 0 {
				n.Notations = &xmlNotations{Tied: ties}
			}
			measures[m].Items = append(measures[m].Items, n)
		}
	}
}

// splitSpan cuts [start, start+dur) at barlines and into notatable values.
func splitSpan(start, dur int) []span {
	var out []span
	pos, remaining := start, dur
	for remaining > 0 {
		chunk := min(remaining, measureDivisions-pos%measureDivisions)
		for chunk > 0 {
			for _, v := range noteValues {
				if v <= chunk {
					out = append(out, span{start: pos, dur: v})
					pos += v
					chunk -= v
					remaining -= v
					break
				}
			}
		}
	}
	return out
}

func noteType(dur int) (string, bool) {
	switch dur {
	case 16:
		return "whole", false
	case 12:
		return "half", true
	case 8:
		return "half", false
	case 6:
		return "quarter", true
	case 4:
		return "quarter", false
	case 3:
		return "eighth", true
	case 2:
		return "eighth", false
	default:
		return "16th", false
	}
}

func dot(dotted bool) *struct{} {
	if dotted {
		return &struct{}{}
	}
	return nil
}

func midiPitch(p int) *xmlPitch {
	return &xmlPitch{Step: pitchSteps[p%12], Alter: pitchAlters[p%12], Octave: p/12 - 1}
}

func toDivisions(sec float64) int {
	if sec <= 0 {
		return 0
	}
	return int(math.Round(sec * divisionsPerSecond))
}
