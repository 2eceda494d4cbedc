// Package home holds the slash command handlers.
package home

import "github.com/leeineian/keeper/sys"

// Register adds every command of the bot to loader.
func Register(loader *sys.Loader, store sys.ReminderStore, cfg *sys.Config) {
	RegisterHelp(loader)
	RegisterPing(loader)
	RegisterReminder(loader, store, cfg)
	RegisterStatus(loader, store, cfg)
	RegisterUserInfo(loader)
}
