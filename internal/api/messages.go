//go:build linux || darwin

package api

import (
	"encoding/json"

	"github.com/PiranhaCodes/ptyhost/internal/shell"
)

// Actions understood by the server. Each connection carries one request.
const (
	ActionSpawn  = "spawn"
	ActionWrite  = "write"
	ActionRead   = "read"
	ActionResize = "resize"
	ActionSize   = "size"
	ActionKill   = "kill"
	ActionList   = "list"
)

// Request represents an incoming request over the UNIX socket.
type Request struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Response represents a response to a request.
type Response struct {
	Ok   bool        `json:"ok"`
	Err  string      `json:"err,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// SpawnRequest is the data for a spawn action. Zero dimensions keep the
// kernel default.
type SpawnRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type SpawnResponse struct {
	ID    string `json:"id"`
	Pid   int    `json:"pid"`
	Slave string `json:"slave"`
}

// SessionRequest addresses an existing session (kill, size).
type SessionRequest struct {
	ID string `json:"id"`
}

type WriteRequest struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// ReadRequest drains up to Max bytes of scrollback; Max <= 0 drains all.
type ReadRequest struct {
	ID  string `json:"id"`
	Max int    `json:"max"`
}

type ReadResponse struct {
	Data    string `json:"data"`
	Running bool   `json:"running"`
}

type ResizeRequest struct {
	ID   string `json:"id"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

type SizeResponse struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type ListResponse struct {
	Sessions []shell.Status `json:"sessions"`
	Count    int            `json:"count"`
}
