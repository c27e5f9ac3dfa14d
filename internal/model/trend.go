package model

// Direction is the classified trend direction.
type Direction string

const (
	DirectionUp       Direction = "UP"
	DirectionDown     Direction = "DOWN"
	DirectionSideways Direction = "SIDEWAYS"
)

// Trend is the fused view of one snapshot: a direction, the share of votes
// agreeing with it and the justification of each agreeing vote.
type Trend struct {
	Direction Direction `json:"direction"`
	Strength  float64   `json:"strength"`
	Reasons   []string  `json:"reasons"`
}
