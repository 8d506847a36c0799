package media

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/raphaelgruber/sheetcast/internal/models"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ticksPerQuarter is the resolution of written MIDI files.
const ticksPerQuarter = 480

var errNoMetricTicks = errors.New("midi file does not use metric ticks")

// timedMsg is a message at an absolute tick.
type timedMsg struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// WriteMIDI writes events as a format 1 SMF at bpm. Right-hand notes go to
// the first track, left-hand notes to the second; unassigned notes count as
// right hand.
func WriteMIDI(path string, events []models.NoteEvent, bpm float64) error {
	if bpm <= 0 {
		bpm = models.DefaultTempoBPM
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var right, left []models.NoteEvent
	for _, e := range events {
		if e.Hand == models.HandLeft {
			left = append(left, e)
		} else {
			right = append(right, e)
		}
	}

	for i, notes := range [][]models.NoteEvent{right, left} {
		var tr smf.Track
		if i == 0 {
			tr.Add(0, smf.MetaTempo(bpm))
		}
		var last uint32
		for _, m := range trackMessages(notes, bpm, uint8(i)) {
			tr.Add(m.tick-last, m.msg)
			last = m.tick
		}
		tr.Close(0)
		if err := s.Add(tr); err != nil {
			return fmt.Errorf("add track: %w", err)
		}
	}

	if err := s.WriteFile(path); err != nil {
		return fmt.Errorf("write midi: %w", err)
	}
	return nil
}

// trackMessages converts notes to absolute-tick note on/off pairs, sorted with
// note-offs before note-ons on the same tick.
func trackMessages(notes []models.NoteEvent, bpm float64, channel uint8) []timedMsg {
	msgs := make([]timedMsg, 0, 2*len(notes))
	for _, n := range notes {
		start, end := secondsToTicks(n.Start, bpm), secondsToTicks(n.End, bpm)
		if end <= start {
			end = start + 1
		}
		key, vel := uint8(clampInt(n.Pitch, 0, 127)), uint8(clampInt(n.Velocity, 1, 127))
		msgs = append(msgs,
			timedMsg{tick: start, msg: midi.NoteOn(channel, key, vel)},
			timedMsg{tick: end, off: true, msg: midi.NoteOff(channel, key)},
		)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].tick != msgs[j].tick {
			return msgs[i].tick < msgs[j].tick
		}
		return msgs[i].off && !msgs[j].off
	})
	return msgs
}

func secondsToTicks(sec, bpm float64) uint32 {
	if sec <= 0 {
		return 0
	}
	return uint32(math.Round(sec * bpm / 60 * ticksPerQuarter))
}

// ReadMIDI returns the notes of every track in path, in seconds, and the
// file's initial tempo. Tick positions are converted through the tempo map.
// A key struck again before its note-off opens a second note; note-offs close
// the oldest open note on that key. Unterminated notes are dropped.
func ReadMIDI(path string) ([]models.NoteEvent, float64, error) {
	s, err := smf.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read midi: %w", err)
	}
	if _, ok := s.TimeFormat.(smf.MetricTicks); !ok {
		return nil, 0, errNoMetricTicks
	}

	type startInfo struct {
		tick int64
		vel  uint8
	}

	bpm := models.DefaultTempoBPM
	firstTempoTick := int64(-1)
	notes := make([]models.NoteEvent, 0)

	for _, tr := range s.Tracks {
		var tick int64
		active := make(map[[2]uint8][]startInfo)
		for _, ev := range tr {
			tick += int64(ev.Delta)

			var tempo float64
			if ev.Message.GetMetaTempo(&tempo) {
				if firstTempoTick < 0 || tick < firstTempoTick {
					bpm, firstTempoTick = tempo, tick
				}
				continue
			}

			msg := midi.Message(ev.Message)
			var ch, key, vel uint8
			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				k := [2]uint8{ch, key}
				active[k] = append(active[k], startInfo{tick: tick, vel: vel})
			case msg.GetNoteEnd(&ch, &key):
				k := [2]uint8{ch, key}
				open := active[k]
				if len(open) == 0 {
					continue
				}
				st := open[0]
				active[k] = open[1:]
				notes = append(notes, models.NoteEvent{
					Pitch:    int(key),
					Velocity: int(st.vel),
					Start:    microsToSeconds(s.TimeAt(st.tick)),
					End:      microsToSeconds(s.TimeAt(tick)),
				})
			}
		}
	}

	sortNotes(notes)
	return notes, bpm, nil
}

func microsToSeconds(us int64) float64 {
	return float64(us) / 1e6
}

// sortNotes orders by onset, then pitch.
func sortNotes(notes []models.NoteEvent) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Start != notes[j].Start {
			return notes[i].Start < notes[j].Start
		}
		return notes[i].Pitch < notes[j].Pitch
	})
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
