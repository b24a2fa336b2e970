// Package timetable holds the immutable base schedule graph, the trip
// variant model that layers adjusted and realtime versions on top of it,
// and the stop-time sequence algebra used by realtime edits.
package timetable

// Network is a branded group of lines run by one authority.
type Network struct {
	ID   string
	Name string
}

// CommercialMode is the rider-facing mode of a line (bus, metro, ...).
type CommercialMode struct {
	ID   string
	Name string
}

// PhysicalMode is the vehicle type actually operating a trip.
type PhysicalMode struct {
	ID   string
	Name string
}

// Company operates trips on behalf of a network.
type Company struct {
	ID   string
	Name string
}

// Dataset identifies the data contribution a trip came from.
type Dataset struct {
	ID   string
	Name string
}

// Line is a commercial line; it owns one or more routes.
type Line struct {
	ID             string
	Code           string
	Name           string
	Network        int
	CommercialMode int
	Routes         []int
	SortOrder      int
}

// Route is one directional stop pattern family within a line.
type Route struct {
	ID   string
	Name string
	Line int
}

// StopArea groups the stop points of one station or named place.
type StopArea struct {
	ID         string
	Name       string
	Lat, Lon   float64
	StopPoints []int
}

// StopPoint is a physical boarding position.
type StopPoint struct {
	ID       string
	Name     string
	Lat, Lon float64
	StopArea int
}

// Transfer is a walkable connection between two stop points.
type Transfer struct {
	From     int
	To       int
	Duration int32 // seconds
}
