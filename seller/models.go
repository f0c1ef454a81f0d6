package seller

import "time"

// TrafficType enumerates the kinds of traffic a seller can deliver.
type TrafficType string

const (
	TrafficEmail   TrafficType = "EMAIL"
	TrafficSocial  TrafficType = "SOCIAL"
	TrafficNative  TrafficType = "NATIVE"
	TrafficDisplay TrafficType = "DISPLAY"
	TrafficPush    TrafficType = "PUSH"
	TrafficMixed   TrafficType = "MIXED"
)

// Profile mirrors the seller_profiles table. A user owns at most one
// profile; the allowed lanes and traffic types constrain which listings
// the seller may create.
type Profile struct {
	ID                string
	UserID            string
	DisplayName       string
	Bio               *string
	TrafficTypes      []string
	AllowedLanes      []string
	ComplianceAgreed  bool
	ReputationClean   float64
	ReputationPrivate float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasLane reports whether the profile may sell in the given lane.
func (p Profile) HasLane(lane string) bool {
	for _, l := range p.AllowedLanes {
		if l == lane {
			return true
		}
	}
	return false
}

// HasTrafficType reports whether the profile supports the traffic type.
func (p Profile) HasTrafficType(tt string) bool {
	for _, t := range p.TrafficTypes {
		if t == tt {
			return true
		}
	}
	return false
}
