package model

// Sex selects the distribution constant (Widmark r) for a profile.
type Sex string

// Known sex categories.
const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
	SexOther  Sex = "other"
)

// Profile is the physiological input for one person. The engine only reads it.
type Profile struct {
	WeightKg float64 `json:"weight_kg"`
	Sex      Sex     `json:"sex"`
}
