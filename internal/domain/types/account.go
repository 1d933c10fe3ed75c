package types

// AccountProfile identifies a local account on a specific relay server.
type AccountProfile struct {
	ServerURL string   `json:"server_url"`
	Username  Username `json:"username"`
}

// AccountRecord is the persisted form of the local Olm account.
type AccountRecord struct {
	Profile    AccountProfile `json:"profile"`
	Pickle     string         `json:"pickle"`
	UpdatedUTC int64          `json:"updated_utc"`
}
