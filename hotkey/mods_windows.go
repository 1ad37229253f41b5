package hotkey

import "golang.design/x/hotkey"

var xMods = map[Mod]hotkey.Modifier{
	Control: hotkey.ModCtrl,
	Shift:   hotkey.ModShift,
	Alt:     hotkey.ModAlt,
	Super:   hotkey.ModWin,
	Meta:    hotkey.ModWin,
}
