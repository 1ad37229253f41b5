package hotkey

import "golang.design/x/hotkey"

var xMods = map[Mod]hotkey.Modifier{
	Control: hotkey.ModCtrl,
	Shift:   hotkey.ModShift,
	Alt:     hotkey.ModOption,
	Meta:    hotkey.ModCmd,
	Super:   hotkey.ModCmd,
}
