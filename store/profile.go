package store

import (
	"time"

	"github.com/dgraph-io/badger/v4"
)

var profileKey = []byte("voice_profile")

// Profile is the result of voice training.
type Profile struct {
	// Corrections maps a folded misheard word to the word meant.
	Corrections map[string]string `json:"corrections"`
	SpeechHint  string            `json:"speechHint"`
	AvgAccuracy int               `json:"avgAccuracy"`
	SampleCount int               `json:"sampleCount"`
	TrainedAt   time.Time         `json:"trainedAt"`
}

type VoiceProfile struct {
	db *DB
}

func (d *DB) VoiceProfile() *VoiceProfile {
	return &VoiceProfile{db: d}
}

// Get returns the stored profile, or nil when none was trained.
func (v *VoiceProfile) Get() (*Profile, error) {
	var p Profile
	ok, err := v.db.getJSON(profileKey, &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (v *VoiceProfile) Save(p Profile) error {
	return v.db.putJSON(profileKey, p)
}

func (v *VoiceProfile) Clear() error {
	return v.db.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(profileKey)
	})
}
