package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseEvent(t *testing.T) {
	t.Run("Progress With Percent", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"progress","message":"Loading audio file...","percent":5}`))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ev.Kind != EventProgress {
			t.Errorf("expected progress, got %v", ev.Kind)
		}
		if ev.Message != "Loading audio file..." {
			t.Errorf("unexpected message %q", ev.Message)
		}
		if ev.Percent != 5 {
			t.Errorf("expected percent 5, got %d", ev.Percent)
		}
	})

	t.Run("Progress Without Percent", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"progress","message":"uploading"}`))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ev.Percent != -1 {
			t.Errorf("expected percent -1, got %d", ev.Percent)
		}
	})

	t.Run("Complete", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"complete","data":{"meta":{"filename":"a.mp3"},"bpm":128}}`))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ev.Kind != EventComplete || ev.Track == nil {
			t.Fatalf("expected complete event with track, got %+v", ev)
		}
		if ev.Track.Filename() != "a.mp3" || ev.Track.BPM != 128 {
			t.Errorf("unexpected track %+v", ev.Track)
		}
		if string(ev.Track.Raw) != `{"meta":{"filename":"a.mp3"},"bpm":128}` {
			t.Errorf("expected raw payload to be kept, got %s", ev.Track.Raw)
		}
	})

	t.Run("Error", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"error","message":"Stem separation failed"}`))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ev.Kind != EventError || ev.Message != "Stem separation failed" {
			t.Errorf("unexpected event %+v", ev)
		}
	})

	tc := []struct {
		name string
		line string
		want string
	}{
		{name: "invalid json", line: `{not json`, want: "invalid JSON"},
		{name: "unknown type", line: `{"type":"heartbeat"}`, want: "unknown event type"},
		{name: "progress without message", line: `{"type":"progress"}`, want: "missing message"},
		{name: "error without message", line: `{"type":"error"}`, want: "missing message"},
		{name: "complete without data", line: `{"type":"complete"}`, want: "missing data"},
		{name: "complete with null data", line: `{"type":"complete","data":null}`, want: "missing data"},
		{name: "complete without filename", line: `{"type":"complete","data":{"bpm":120}}`, want: "meta.filename"},
	}

	for _, tt := range tc {
		t.Run("Rejects "+tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.line))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestFlex(t *testing.T) {
	var mp MixPoints
	data := `{"intro_end":"0:32","drop":64.5,"outro_start":null}`
	if err := json.Unmarshal([]byte(data), &mp); err != nil {
		t.Fatalf("failed to unmarshal mix points: %v", err)
	}

	if mp.IntroEnd.String() != "0:32" {
		t.Errorf("expected intro_end 0:32, got %s", mp.IntroEnd.String())
	}
	if mp.Drop.Num == nil || *mp.Drop.Num != 64.5 {
		t.Errorf("expected numeric drop 64.5, got %+v", mp.Drop)
	}
	if !mp.OutroStart.IsZero() {
		t.Error("expected null outro_start to be zero")
	}

	if err := json.Unmarshal([]byte(`{"drop":true}`), &mp); err == nil {
		t.Error("expected error for boolean value")
	}
}

func TestTrackRecord(t *testing.T) {
	t.Run("StemFile", func(t *testing.T) {
		track := &TrackRecord{
			Meta:      Meta{Filename: "song.mp3"},
			StemFiles: map[string]string{"vocal": "song_vocals.wav", "guitar": ""},
		}

		if got := track.StemFile(StemMain); got != "song.mp3" {
			t.Errorf("expected main to fall back to filename, got %s", got)
		}
		if got := track.StemFile(StemVocal); got != "song_vocals.wav" {
			t.Errorf("expected vocal file, got %s", got)
		}
		if got := track.StemFile(StemGuitar); got != "" {
			t.Errorf("expected empty reference for guitar, got %s", got)
		}
		if got := track.StemFile(StemPiano); got != "" {
			t.Errorf("expected missing piano to be absent, got %s", got)
		}
	})

	t.Run("DisplayTitle", func(t *testing.T) {
		track := &TrackRecord{Meta: Meta{Filename: "a.mp3"}}
		if track.DisplayTitle() != "a.mp3" {
			t.Errorf("expected filename fallback, got %s", track.DisplayTitle())
		}
		track.Meta.Title = "Anthem"
		if track.DisplayTitle() != "Anthem" {
			t.Errorf("expected title, got %s", track.DisplayTitle())
		}
	})
}

func TestParseStem(t *testing.T) {
	tc := []struct {
		in   string
		want StemID
	}{
		{"main", StemMain},
		{"vocal", StemVocal},
		{"vocals", StemVocal},
		{"hats", StemHihats},
		{"hihats", StemHihats},
		{"other", StemOther},
	}
	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStem(tt.in)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseStem(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}

	if _, err := ParseStem("drums"); err == nil {
		t.Error("expected error for unknown stem")
	}
}

func TestEventLines(t *testing.T) {
	for _, line := range [][]byte{
		ProgressLine("Detecting BPM & Key...", 10),
		ErrorLine("boom"),
		CompleteLine([]byte(`{"meta":{"filename":"x.wav"}}`)),
	} {
		if line[len(line)-1] != '\n' {
			t.Errorf("expected trailing newline in %q", line)
		}
		if _, err := ParseEvent(line[:len(line)-1]); err != nil {
			t.Errorf("expected encoded line to parse, got %v", err)
		}
	}
}
