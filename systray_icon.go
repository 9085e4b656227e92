package main

import (
	_ "embed"

	"github.com/getlantern/systray"
)

//go:embed assets/icon.png
var iconBytes []byte

// RunSystray runs the tray control surface and blocks until Quit is chosen.
// Used instead of the fixed-duration headless run when -tray is set.
func RunSystray(sh *shell) {
	systray.Run(
		func() { onSystrayReady(sh) },
		func() { sh.StopSession() },
	)
}

func onSystrayReady(sh *shell) {
	systray.SetTemplateIcon(iconBytes, iconBytes)
	systray.SetTooltip("keycapture — Idle")

	mStatus := systray.AddMenuItem("Idle", "Current capture status")
	mStatus.Disable()
	mToggle := systray.AddMenuItem("Start capture", "Start or stop a capture session")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit keycapture", "Exit the application")

	// Status reports land on the tray: the status line plus the tooltip.
	sh.setNotify(func(msg string) {
		mStatus.SetTitle(msg)
		systray.SetTooltip("keycapture — " + msg)
		if sh.IsRunning() {
			mToggle.SetTitle("Stop capture")
		} else {
			mToggle.SetTitle("Start capture")
		}
	})

	go func() {
		for {
			select {
			case <-mToggle.ClickedCh:
				sh.Toggle()
			case <-mQuit.ClickedCh:
				sh.StopSession()
				systray.Quit()
				return
			}
		}
	}()
}
