//go:build linux

package clipboard

import (
	"encoding/binary"
	"testing"
)

func rawEvent(typ, code uint16, value int32) []byte {
	b := make([]byte, inputEventSize)
	binary.LittleEndian.PutUint16(b[16:], typ)
	binary.LittleEndian.PutUint16(b[18:], code)
	binary.LittleEndian.PutUint32(b[20:], uint32(value))
	return b
}

func TestKeyCodes(t *testing.T) {
	var buf []byte
	buf = append(buf, rawEvent(evKey, keyLCtrl, 1)...)
	buf = append(buf, rawEvent(evSyn, 0, 0)...)
	buf = append(buf, rawEvent(evKey, keyV, 1)...)
	buf = append(buf, rawEvent(evSyn, keyC, 0)...)
	buf = append(buf, 0xff, 0xff) // partial event

	got := keyCodes(buf)
	if !got[keyLCtrl] || !got[keyV] {
		t.Fatalf("keyCodes = %v, want ctrl and v", got)
	}
	if got[keyC] {
		t.Error("EV_SYN code counted as key")
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}
