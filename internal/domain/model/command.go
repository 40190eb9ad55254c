package model

import "time"

// DrinkLogged is an accepted drink waiting to be appended to a participant's log.
type DrinkLogged struct {
	SessionID  string
	PersonID   string
	Drink      DrinkEvent
	ReceivedAt time.Time
}
