// Package tgui renders bot replies: escaped Telegram HTML with {placeholder}
// templates, inline keyboards, and a line builder producing text with its
// send options.
package tgui
