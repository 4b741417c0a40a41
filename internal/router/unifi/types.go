package unifi

// PlaceholderName is used for clients the controller reports without a name
// or hostname.
const PlaceholderName = "(unnamed)"

// loginRequest is the body for POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// stationCommand is the body for POST .../cmd/stamgr. Cmd discriminates
// between block-sta and unblock-sta.
type stationCommand struct {
	Cmd string `json:"cmd"`
	MAC string `json:"mac"`
}

const (
	cmdBlockStation   = "block-sta"
	cmdUnblockStation = "unblock-sta"
)

// station is one raw client record as the controller reports it. Name is
// the user-assigned alias and is frequently absent; Hostname is what the
// device announced about itself.
type station struct {
	Name     string `json:"name"`
	Hostname string `json:"hostname"`
	MAC      string `json:"mac"`
}

// listResponse is the envelope around every controller listing.
type listResponse struct {
	Data []station `json:"data"`
}

// csrfHeader carries the anti-forgery token in both directions.
const csrfHeader = "x-csrf-token"
