package pipeline

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// DefaultPhrases are acknowledgement interjections speech engines like to
// invent on silence.
var DefaultPhrases = []string{
	"thank you", "thanks", "thankyou", "uh", "um", "hmm", "ah", "oh",
	"yeah", "yes", "no", "ok", "okay", "ok ok", "huh", "eh", "er",
	"well", "right", "sure", "got it", "gotcha", "yep", "nope", "mhm", "mm",
	"alright", "all right", "sounds good", "sure thing",
}

// Filter holds the quality gates applied before and after transcription.
type Filter struct {
	// MinAudioBytes rejects a take before any engine is called.
	MinAudioBytes int
	// Transcripts shorter than ShortChars are checked against Phrases and
	// the word count.
	ShortChars    int
	MaxNoiseWords int
	Phrases       []string

	once     sync.Once
	patterns []*regexp.Regexp
}

func DefaultFilter() *Filter {
	return &Filter{
		MinAudioBytes: 5000,
		ShortChars:    15,
		MaxNoiseWords: 2,
		Phrases:       DefaultPhrases,
	}
}

var spaceRun = regexp.MustCompile(`\s+`)

func (f *Filter) compile() {
	for _, p := range f.Phrases {
		words := spaceRun.Split(strings.TrimSpace(p), -1)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		expr := `(?i)^\s*` + strings.Join(words, `\s*`) + `\s*[.,?!]*\s*$`
		f.patterns = append(f.patterns, regexp.MustCompile(expr))
	}
}

// TooShort reports whether the take is below the audio size floor.
func (f *Filter) TooShort(audio []byte) bool {
	return len(audio) < f.MinAudioBytes
}

// IsNoise reports whether a short transcript is a filler phrase or has
// too few real words to be worth typing.
func (f *Filter) IsNoise(raw string) bool {
	if utf8.RuneCountInString(raw) >= f.ShortChars {
		return false
	}
	f.once.Do(f.compile)
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, re := range f.patterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return len(realWords(normalized)) <= f.MaxNoiseWords
}

func realWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if strings.Trim(w, ".,?!") != "" {
			out = append(out, w)
		}
	}
	return out
}
