// Package tgui holds small Telegram UI helpers: HTML escaping, callback data
// of the form "scope:action:payload", inline keyboards and text splitting.
package tgui
