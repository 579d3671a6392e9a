package model

// PatientSummary is the subset of the patient record shown on the calling
// display. Records themselves are owned by the patient registry.
type PatientSummary struct {
	Ref    string `json:"ref" bson:"_id"`
	Name   string `json:"name" bson:"name"`
	Gender string `json:"gender,omitempty" bson:"gender,omitempty"`
	Phone  string `json:"phone,omitempty" bson:"phone,omitempty"`
}
