package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"rephrase/audio"
	"rephrase/llm"
	"rephrase/store"
	"rephrase/transcriber"
)

// TrainingPhrases are read aloud during voice training.
var TrainingPhrases = []string{
	"The quick brown fox jumps over the lazy dog.",
	"Please schedule the meeting for Thursday afternoon at three.",
	"I need to update the configuration file before the release.",
	"Send the quarterly report to the marketing team by Friday.",
	"Can you check whether the database migration finished?",
}

// Sample is one scored training recording.
type Sample struct {
	Expected    string            `json:"expected"`
	Heard       string            `json:"heard"`
	Accuracy    int               `json:"accuracy"`
	Corrections map[string]string `json:"corrections"`
}

func scoreWords(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
	return strings.Fields(cleaned)
}

// ScoreSample compares what was heard with what was read, word by word at
// the same position. Mismatches become corrections keyed by FoldKey.
func ScoreSample(expected, heard string) Sample {
	want, got := scoreWords(expected), scoreWords(heard)
	s := Sample{Expected: expected, Heard: heard, Corrections: map[string]string{}}
	matches := 0
	for i, w := range want {
		if i >= len(got) {
			break
		}
		if got[i] == w {
			matches++
		} else {
			s.Corrections[FoldKey(got[i])] = w
		}
	}
	s.Accuracy = int(math.Round(float64(matches) / float64(max(len(want), 1)) * 100))
	return s
}

type ProfileStore interface {
	Profiles
	Save(p store.Profile) error
}

// Trainer records samples and builds the voice profile.
type Trainer struct {
	Converter audio.Converter
	STT       transcriber.Engine
	LLM       llm.Completer
	Profiles  ProfileStore
	Model     string
	TmpDir    string
	Now       func() time.Time
}

// Process transcribes one recording of expected and scores it. Training
// always transcribes as English.
func (t *Trainer) Process(ctx context.Context, rec []byte, expected string) (Sample, error) {
	dir := t.TmpDir
	if dir == "" {
		dir = os.TempDir()
	}
	wav := filepath.Join(dir, "voice-train-"+uuid.NewString()+".wav")
	defer os.Remove(wav)
	if err := t.Converter.ToWAV(ctx, rec, wav); err != nil {
		return Sample{}, fmt.Errorf("convert: %w", err)
	}
	res, err := t.STT.Transcribe(ctx, transcriber.Request{WAVPath: wav, Model: t.Model, Language: "en"})
	if err != nil {
		return Sample{}, Classify(err)
	}
	heard := strings.TrimSpace(res.Text)
	if heard == "" {
		return Sample{}, inputError(MsgNothingHeard)
	}
	return ScoreSample(expected, heard), nil
}

// Build merges samples by majority vote per misheard word, asks the LLM
// for a speech hint and saves the profile.
func (t *Trainer) Build(ctx context.Context, samples []Sample) (store.Profile, error) {
	votes := map[string]map[string]int{}
	firstSeen := map[string][]string{}
	var details []string
	total := 0
	for _, s := range samples {
		total += s.Accuracy
		details = append(details, fmt.Sprintf("Expected: %q\nHeard: %q\nAccuracy: %d%%", s.Expected, s.Heard, s.Accuracy))
		for _, wrong := range sortedKeys(s.Corrections) {
			right := s.Corrections[wrong]
			if votes[wrong] == nil {
				votes[wrong] = map[string]int{}
			}
			if votes[wrong][right] == 0 {
				firstSeen[wrong] = append(firstSeen[wrong], right)
			}
			votes[wrong][right]++
		}
	}

	corrections := make(map[string]string, len(votes))
	for wrong, options := range votes {
		best := ""
		for _, candidate := range firstSeen[wrong] {
			if best == "" || options[candidate] > options[best] {
				best = candidate
			}
		}
		corrections[wrong] = best
	}

	hint, err := t.LLM.Complete(ctx, []llm.Message{
		llm.System(speechAnalysisPrompt),
		llm.User(strings.Join(details, "\n\n")),
	}, llm.Options{Temperature: 0.3, MaxTokens: 300})
	if err != nil {
		return store.Profile{}, Classify(err)
	}

	avg := 0
	if len(samples) > 0 {
		avg = int(math.Round(float64(total) / float64(len(samples))))
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	p := store.Profile{
		Corrections: corrections,
		SpeechHint:  hint,
		AvgAccuracy: avg,
		SampleCount: len(samples),
		TrainedAt:   now(),
	}
	if t.Profiles != nil {
		if err := t.Profiles.Save(p); err != nil {
			return p, fmt.Errorf("save profile: %w", err)
		}
	}
	return p, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
