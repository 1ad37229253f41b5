//go:build linux

package hotkey

import (
	"encoding/binary"
	"testing"
)

func TestEvdevComboFeed(t *testing.T) {
	acc, _ := Parse("Control+Shift+Space")
	hk, err := New(acc)
	if err != nil {
		t.Fatal(err)
	}
	h := hk.(*evdevHotkey)
	st := &comboState{held: map[uint16]bool{}}

	if down, _ := h.feed(st, 57, keyPress); down {
		t.Fatal("space alone fired")
	}
	h.feed(st, 57, keyRelease)

	h.feed(st, 97, keyPress) // right ctrl
	h.feed(st, 42, keyPress)
	if down, _ := h.feed(st, 57, keyPress); !down {
		t.Fatal("combo did not fire")
	}
	if down, _ := h.feed(st, 57, 2); down {
		t.Fatal("autorepeat fired again")
	}
	if _, up := h.feed(st, 57, keyRelease); !up {
		t.Fatal("release not reported")
	}
}

func TestEvdevRejectsUnknownKey(t *testing.T) {
	if _, err := New(Accelerator{Mods: []Mod{Control}, Key: "Pause"}); err == nil {
		t.Error("expected error")
	}
}

func TestEachKeyEventSkipsNonKey(t *testing.T) {
	buf := make([]byte, inputEventSize*3+5)
	put := func(i int, typ, code uint16, value int32) {
		rec := buf[i*inputEventSize:]
		binary.LittleEndian.PutUint16(rec[16:], typ)
		binary.LittleEndian.PutUint16(rec[18:], code)
		binary.LittleEndian.PutUint32(rec[20:], uint32(value))
	}
	put(0, evKey, 29, keyPress)
	put(1, 0, 0, 0)
	put(2, evKey, 29, keyRelease)

	var got []int32
	eachKeyEvent(buf, func(code uint16, value int32) {
		if code != 29 {
			t.Errorf("code = %d", code)
		}
		got = append(got, value)
	})
	if len(got) != 2 || got[0] != keyPress || got[1] != keyRelease {
		t.Errorf("values = %v", got)
	}
}
