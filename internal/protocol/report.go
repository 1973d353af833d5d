package protocol

// REPORT (engine -> presentation layer)
type Report struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	World           string `json:"world"`
	GeneratedAt     string `json:"generated_at"`

	Counts Counts         `json:"counts"`
	Maps   []MapSummary   `json:"maps,omitempty"`
	Groups []GroupSummary `json:"groups"`
	Lost   []int          `json:"lost"`

	// LostMayBeInaccurate is set when chunks could not be read, so some
	// references may have been missed.
	LostMayBeInaccurate bool `json:"lost_may_be_inaccurate"`

	Rewrite  *RewriteSummary `json:"rewrite,omitempty"`
	Warnings WarningCounts   `json:"warnings"`
	Details  []Warning       `json:"details,omitempty"`
}

type Counts struct {
	Total      int `json:"total"`
	Unique     int `json:"unique"`
	Groups     int `json:"groups"`
	Duplicates int `json:"duplicates"`
	Lost       int `json:"lost"`
	References int `json:"references"`
}

type MapSummary struct {
	ID         int    `json:"id"`
	Type       string `json:"type"`
	Dimension  string `json:"dimension"`
	Scale      int    `json:"scale"`
	Center     [2]int `json:"center"`
	Explored   int    `json:"explored"`
	References int    `json:"references"`
	Lost       bool   `json:"lost"`
}

type GroupSummary struct {
	Dimension  string `json:"dimension"`
	Scale      int    `json:"scale"`
	Center     [2]int `json:"center"`
	Members    []int  `json:"members"`
	Canonical  int    `json:"canonical"`
	Superseded []int  `json:"superseded"`
	Conflicts  int    `json:"conflicts"`
}

type RewriteSummary struct {
	DryRun      bool            `json:"dry_run"`
	Changed     int             `json:"changed"`
	Failed      int             `json:"failed"`
	PixelWrites int             `json:"pixel_writes"`
	Deleted     []int           `json:"deleted"`
	Kept        []int           `json:"kept,omitempty"`
	Changes     []ChangeSummary `json:"changes,omitempty"`
}

type ChangeSummary struct {
	Path    string `json:"path"`
	From    int    `json:"from"`
	To      int    `json:"to"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// SUBSCRIBE (observer -> server)
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// SCAN_PROGRESS (server -> observer)
type ScanProgressMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Done            int    `json:"done"`
	Total           int    `json:"total"`
	References      int    `json:"references"`
	Warnings        int    `json:"warnings"`
}
