// Package web embeds the player page served at /. The page hosts the player
// in a video element and drives it over the /bridge WebSocket.
package web

import "embed"

//go:embed index.html bridge.js style.css
var Assets embed.FS
