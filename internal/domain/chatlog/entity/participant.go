package entity

// Participant is a sender seen in the chat logs.
// Nickname is the one first seen for the identity; later sightings never update it.
type Participant struct {
	Identity string `json:"identity"`
	Nickname string `json:"nickname"`
}
