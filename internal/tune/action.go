package tune

import "time"

// Action describes one adjustment an adaptive controller decided to
// make: which tunable on which resource moved, and from what to what.
type Action struct {
	Domain   string    `json:"domain"`
	Resource string    `json:"resource"`
	Tunable  string    `json:"tunable"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Time     time.Time `json:"time"`
}
