package router

// Client is one network client known to a router. MAC is the stable
// identity used for block/unblock; Name is a best-effort display label.
type Client struct {
	Name string `json:"name"`
	MAC  string `json:"mac"`
}

// Router is the management surface this tool needs from a router backend.
// There is one production implementation (router/unifi) and a mock backend
// in testutils for tests.
type Router interface {
	// KnownClients returns every client the router has ever seen.
	KnownClients() ([]Client, error)
	// OnlineClients returns the clients currently connected.
	OnlineClients() ([]Client, error)
	// Block cuts network access for the client, keyed by MAC.
	Block(c Client) error
	// Unblock restores network access for the client, keyed by MAC.
	Unblock(c Client) error
}
