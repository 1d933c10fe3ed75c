package types

// OPAQUE payloads exchanged with the relay. Byte fields carry the opaque
// protocol messages verbatim.

// RegisterStartRequest opens an OPAQUE registration.
type RegisterStartRequest struct {
	Username Username `json:"username"`
	Request  []byte   `json:"request"`
}

// RegisterStartResponse carries the server's registration response.
type RegisterStartResponse struct {
	Response []byte `json:"response"`
}

// RegisterFinishRequest uploads the client's registration record.
type RegisterFinishRequest struct {
	Username Username `json:"username"`
	Upload   []byte   `json:"upload"`
}

// LoginStartRequest opens an OPAQUE login.
type LoginStartRequest struct {
	Username Username `json:"username"`
	Request  []byte   `json:"request"`
}

// LoginStartResponse carries the server's credential response and the
// handle the client must echo on finish.
type LoginStartResponse struct {
	LoginID  string `json:"login_id"`
	Response []byte `json:"response"`
}

// LoginFinishRequest carries the client's finalization message.
type LoginFinishRequest struct {
	LoginID      string `json:"login_id"`
	Finalization []byte `json:"finalization"`
}

// LoginFinishResponse proves the server derived the same session key and
// carries the relay access token issued on success.
type LoginFinishResponse struct {
	Confirmation []byte `json:"confirmation"`
	AccessToken  string `json:"access_token"`
	ExpiresUTC   int64  `json:"expires_utc"`
}

// Credentials are what a successful login leaves on the device.
type Credentials struct {
	Username    Username `json:"username"`
	SessionKey  []byte   `json:"session_key"`
	AccessToken string   `json:"access_token"`
	ExpiresUTC  int64    `json:"expires_utc"`
}
