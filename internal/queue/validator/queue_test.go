package validator

import (
	"errors"
	"strings"
	"testing"

	"clinicflow/pkg/model"
)

func intPtr(i int) *int { return &i }

func TestValidateRegister(t *testing.T) {
	v := NewQueueValidator(0, 10)

	tests := []struct {
		name      string
		req       model.RegisterRequest
		wantField string
	}{
		{name: "valid", req: model.RegisterRequest{PatientRef: "P-1001"}},
		{name: "valid with date and priority", req: model.RegisterRequest{PatientRef: "mrn:42", Date: "2025-04-30", Priority: intPtr(3)}},
		{name: "missing patient", req: model.RegisterRequest{}, wantField: "patient_ref"},
		{name: "bad patient ref", req: model.RegisterRequest{PatientRef: "P 1001"}, wantField: "patient_ref"},
		{name: "too long patient ref", req: model.RegisterRequest{PatientRef: strings.Repeat("a", 65)}, wantField: "patient_ref"},
		{name: "bad date", req: model.RegisterRequest{PatientRef: "P1", Date: "30/04/2025"}, wantField: "date"},
		{name: "negative priority", req: model.RegisterRequest{PatientRef: "P1", Priority: intPtr(-1)}, wantField: "priority"},
		{name: "priority above max", req: model.RegisterRequest{PatientRef: "P1", Priority: intPtr(11)}, wantField: "priority"},
		{name: "note too long", req: model.RegisterRequest{PatientRef: "P1", Note: strings.Repeat("n", 501)}, wantField: "note"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRegister(&tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateRegister() unexpected error = %v", err)
				}
				return
			}
			assertField(t, err, tt.wantField)
		})
	}
}

func TestValidateCancel(t *testing.T) {
	v := NewQueueValidator(0, 10)

	if err := v.ValidateCancel(&model.CancelRequest{Reason: "patient left"}); err != nil {
		t.Fatalf("ValidateCancel() unexpected error = %v", err)
	}
	assertField(t, v.ValidateCancel(&model.CancelRequest{}), "reason")
}

func TestValidateCallNext(t *testing.T) {
	v := NewQueueValidator(0, 10)

	for _, date := range []string{"", "2025-04-30"} {
		if err := v.ValidateCallNext(&model.CallNextRequest{Date: date}); err != nil {
			t.Fatalf("ValidateCallNext(%q) unexpected error = %v", date, err)
		}
	}
	assertField(t, v.ValidateCallNext(&model.CallNextRequest{Date: "tomorrow"}), "date")
	assertField(t, v.ValidateCallNext(&model.CallNextRequest{Date: "2025-13-45"}), "date")
}

func TestValidatePriority(t *testing.T) {
	v := NewQueueValidator(1, 5)

	if err := v.ValidatePriority(&model.PriorityUpdate{Priority: intPtr(5)}); err != nil {
		t.Fatalf("ValidatePriority() unexpected error = %v", err)
	}
	assertField(t, v.ValidatePriority(&model.PriorityUpdate{}), "priority")
	assertField(t, v.ValidatePriority(&model.PriorityUpdate{Priority: intPtr(0)}), "priority")
}

func assertField(t *testing.T, err error, field string) {
	t.Helper()
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}
	for _, e := range verrs {
		if e.Field == field {
			if e.Message == "" {
				t.Errorf("field %s has empty message", field)
			}
			if _, ok := verrs.Details()["fields"].(map[string]any)[field]; !ok {
				t.Errorf("Details() missing field %s", field)
			}
			return
		}
	}
	t.Errorf("errors %v do not mention field %s", verrs, field)
}
