package types

// Project groups clips, songs and playlists under a content root.
type Project struct {
	ProjectID   string `json:"projectID"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Created     int64  `json:"created"`
	Updated     int64  `json:"updated"`
}

// Clip is a single piece of Strudel code.
type Clip struct {
	ProjectID string         `json:"projectID"`
	ClipID    string         `json:"clipID"`
	Name      string         `json:"name"`
	Code      string         `json:"code"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Created   int64          `json:"created"`
	Updated   int64          `json:"updated"`
}

// Song arranges clips in order.
type Song struct {
	ProjectID string         `json:"projectID"`
	SongID    string         `json:"songID"`
	Name      string         `json:"name"`
	ClipIDs   []string       `json:"clipIDs"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Created   int64          `json:"created"`
	Updated   int64          `json:"updated"`
}

// Playlist arranges songs in order.
type Playlist struct {
	ProjectID  string         `json:"projectID"`
	PlaylistID string         `json:"playlistID"`
	Name       string         `json:"name"`
	SongIDs    []string       `json:"songIDs"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Created    int64          `json:"created"`
	Updated    int64          `json:"updated"`
}
