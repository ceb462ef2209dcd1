// Package panel serves the plug control page as an embedded asset.
//
// The page is a single index.html with a small script that calls the
// /turnOn, /turnOff and /status endpoints and listens for
// plug.state_changed events on /api/v1/ws. It is embedded with go:embed so
// the binary has no runtime dependency on external files.
//
// Unlike a single page application there is no index fallback: a request
// for a file that does not exist is handed to the caller's not-found
// handler so unknown routes keep a JSON 404.
package panel
