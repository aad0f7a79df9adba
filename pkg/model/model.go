package model

// Position is a snapshot of the aircraft state captured from, or written
// back to, the simulator. Field order is significant: it defines the flat
// vector returned by Values and the column order of exports.
type Position struct {
	// Location
	Latitude  float64 `json:"latitude" msgpack:"lat"`  // Degrees
	Longitude float64 `json:"longitude" msgpack:"lon"` // Degrees
	Altitude  float64 `json:"altitude" msgpack:"alt"`  // Feet MSL

	// Attitude
	Pitch       float64 `json:"pitch" msgpack:"pitch"`      // Degrees
	Bank        float64 `json:"bank" msgpack:"bank"`        // Degrees
	TrueHeading float64 `json:"true_heading" msgpack:"hdg"` // Degrees True

	// Body velocities (feet per second)
	VelocityBodyX float64 `json:"velocity_body_x" msgpack:"vbx"`
	VelocityBodyY float64 `json:"velocity_body_y" msgpack:"vby"`
	VelocityBodyZ float64 `json:"velocity_body_z" msgpack:"vbz"`

	// Body rotation rates (radians per second)
	RotationVelocityBodyX float64 `json:"rotation_velocity_body_x" msgpack:"rbx"`
	RotationVelocityBodyY float64 `json:"rotation_velocity_body_y" msgpack:"rby"`
	RotationVelocityBodyZ float64 `json:"rotation_velocity_body_z" msgpack:"rbz"`

	// Control surfaces and levers
	ElevatorPosition       float64 `json:"elevator_position" msgpack:"elev"`
	AileronPosition        float64 `json:"aileron_position" msgpack:"ail"`
	RudderPosition         float64 `json:"rudder_position" msgpack:"rud"`
	ElevatorTrimPosition   float64 `json:"elevator_trim_position" msgpack:"trim"`
	TrailingEdgeFlaps      float64 `json:"trailing_edge_flaps" msgpack:"flaps"`
	ThrottleLeverPosition  float64 `json:"throttle_lever_position" msgpack:"thr"`
	SpoilersHandlePosition float64 `json:"spoilers_handle_position" msgpack:"spl"`
	GearHandlePosition     float64 `json:"gear_handle_position" msgpack:"gear"`
	BrakeLeftPosition      float64 `json:"brake_left_position" msgpack:"brkl"`
	BrakeRightPosition     float64 `json:"brake_right_position" msgpack:"brkr"`

	IsOnGround float64 `json:"is_on_ground" msgpack:"gnd"` // 1.0 on ground, 0.0 airborne
}

// FieldCount is the number of scalar fields in a Position.
const FieldCount = 23

// Range describes the half-open interval [Min, Max) of a circular quantity.
type Range struct {
	Min float64
	Max float64
}

// Span returns Max - Min.
func (r Range) Span() float64 { return r.Max - r.Min }

// Circular ranges of the angular fields, indexed like Values. Fields absent
// from the map interpolate linearly.
var CircularFields = map[int]Range{
	1: {Min: -180, Max: 180}, // Longitude
	3: {Min: -180, Max: 180}, // Pitch
	4: {Min: -180, Max: 180}, // Bank
	5: {Min: 0, Max: 360},    // TrueHeading
}

// fields returns pointers to every field in declaration order.
func (p *Position) fields() [FieldCount]*float64 {
	return [FieldCount]*float64{
		&p.Latitude, &p.Longitude, &p.Altitude,
		&p.Pitch, &p.Bank, &p.TrueHeading,
		&p.VelocityBodyX, &p.VelocityBodyY, &p.VelocityBodyZ,
		&p.RotationVelocityBodyX, &p.RotationVelocityBodyY, &p.RotationVelocityBodyZ,
		&p.ElevatorPosition, &p.AileronPosition, &p.RudderPosition, &p.ElevatorTrimPosition,
		&p.TrailingEdgeFlaps, &p.ThrottleLeverPosition, &p.SpoilersHandlePosition,
		&p.GearHandlePosition, &p.BrakeLeftPosition, &p.BrakeRightPosition,
		&p.IsOnGround,
	}
}

// Values returns the position as a flat vector in field order.
func (p Position) Values() []float64 {
	ptrs := p.fields()
	out := make([]float64, FieldCount)
	for i, f := range ptrs {
		out[i] = *f
	}
	return out
}

// PositionFromValues is the inverse of Values. Missing trailing values are
// left at zero, extra values are ignored.
func PositionFromValues(v []float64) Position {
	var p Position
	for i, f := range p.fields() {
		if i >= len(v) {
			break
		}
		*f = v[i]
	}
	return p
}

// OnGround reports whether the sample was captured on the ground.
func (p Position) OnGround() bool {
	return p.IsOnGround >= 0.5
}

// Sample is a position tagged with the milliseconds elapsed since the
// recording started.
type Sample struct {
	ElapsedMillis int64    `json:"elapsed_ms" msgpack:"t"`
	Position      Position `json:"position" msgpack:"p"`
}
