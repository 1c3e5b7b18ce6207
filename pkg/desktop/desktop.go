// Package desktop is a thin wrapper around the cross-platform desktop
// notification toast API.
package desktop

import (
	"github.com/gen2brain/beeep"
)

func Notify(title, message, iconPath string) error {
	return beeep.Notify(title, message, iconPath)
}
