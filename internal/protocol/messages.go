package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ObserverName    string      `json:"observer_name"`
	Pos             *[3]float64 `json:"pos,omitempty"`
	Radius          *int        `json:"radius,omitempty"`
	MaxQueue        int         `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ObserverID      string      `json:"observer_id"`
	Tick            uint64      `json:"tick"`
	Pos             [3]float64  `json:"pos"`
	Radius          int         `json:"radius"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickIntervalMs   int    `json:"tick_interval_ms"`
	ChunkSize        [3]int `json:"chunk_size"`
	Height           int    `json:"height"`
	YOffset          int    `json:"y_offset"`
	ViewRadiusMargin int    `json:"view_radius_margin"`
	Seed             int64  `json:"seed"`
}

// MOVE (client -> server): the observer's current position. Applied at the
// next tick boundary.
type MoveMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Pos             [3]float64 `json:"pos"`
}

// RADIUS (client -> server)
type RadiusMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Radius          int    `json:"radius"`
}

// TELEPORT (client -> server): a relocation that commits once the
// destination chunk is resident.
type TeleportMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ID              string     `json:"id,omitempty"`
	Pos             [3]float64 `json:"pos"`
}

// SET_BLOCK (client -> server)
type SetBlockMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Pos             [3]int `json:"pos"`
	Block           string `json:"block"`
}

// STATUS (server -> client), sent every tick with drop-oldest delivery.
type StatusMsg struct {
	Type              string     `json:"type"`
	ProtocolVersion   string     `json:"protocol_version"`
	Tick              uint64     `json:"tick"`
	ObserverID        string     `json:"observer_id"`
	Pos               [3]float64 `json:"pos"`
	Radius            int        `json:"radius"`
	Chunk             [2]int     `json:"chunk"`
	PendingRelocation *[2]int    `json:"pending_relocation,omitempty"`
	Coverage          Coverage   `json:"coverage"`
}

// Coverage counts resident chunks among those within the declared radius.
type Coverage struct {
	Resident int `json:"resident"`
	Total    int `json:"total"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}
