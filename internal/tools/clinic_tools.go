package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/halaclinic/intake/internal/clinic"
	"github.com/halaclinic/intake/internal/triage"
)

// RegisterClinicTools adds the fixed local capability set backed by the
// clinic store.
func RegisterClinicTools(r *Registry, store *clinic.Store) {
	r.Register(&Tool{
		Name:        "triage_classify",
		Description: "Classify the patient's reported symptoms into a severity category. Always call this first, before looking up or registering the patient.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symptoms": map[string]any{
					"type":        "string",
					"description": "The patient's symptoms in their own words, in any language",
				},
			},
			"required": []string{"symptoms"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symptoms := stringArg(args, "symptoms")
			if symptoms == "" {
				return "", &MissingArgsError{Fields: []string{"symptoms"}}
			}
			return triage.Classify(symptoms).JSON(), nil
		},
	})

	r.Register(&Tool{
		Name:        "patient_lookup",
		Description: "Look up an existing patient record by IC number, passport number, or full name. Returns found=false when no record matches.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ic": map[string]any{
					"type":        "string",
					"description": "National identity card number",
				},
				"passport": map[string]any{
					"type":        "string",
					"description": "Passport number, for non-citizens",
				},
				"name": map[string]any{
					"type":        "string",
					"description": "Full name as registered",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ic := stringArg(args, "ic")
			passport := stringArg(args, "passport")
			name := stringArg(args, "name")
			if ic == "" && passport == "" && name == "" {
				return "", &MissingArgsError{Fields: []string{"one of ic, passport, name"}}
			}

			patient, err := store.LookupPatient(ic, passport, name)
			if err != nil {
				return "", err
			}
			if patient == nil {
				return toJSON(map[string]any{"found": false}), nil
			}
			return toJSON(map[string]any{"found": true, "patient": patient}), nil
		},
	})

	r.Register(&Tool{
		Name:        "patient_register",
		Description: "Register a new patient. Requires name, phone, dob, gender, and either an IC number or a passport number. Only call this after patient_lookup returned found=false.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Full name",
				},
				"phone": map[string]any{
					"type":        "string",
					"description": "Contact phone number",
				},
				"dob": map[string]any{
					"type":        "string",
					"description": "Date of birth, YYYY-MM-DD",
				},
				"gender": map[string]any{
					"type": "string",
					"enum": []string{"male", "female"},
				},
				"ic": map[string]any{
					"type":        "string",
					"description": "National identity card number",
				},
				"passport": map[string]any{
					"type":        "string",
					"description": "Passport number, for non-citizens",
				},
			},
			"required": []string{"name", "phone", "dob", "gender"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			p := clinic.Patient{
				Name:     stringArg(args, "name"),
				Phone:    stringArg(args, "phone"),
				DOB:      stringArg(args, "dob"),
				Gender:   stringArg(args, "gender"),
				IC:       stringArg(args, "ic"),
				Passport: stringArg(args, "passport"),
			}

			var missing []string
			if p.Name == "" {
				missing = append(missing, "name")
			}
			if p.Phone == "" {
				missing = append(missing, "phone")
			}
			if p.DOB == "" {
				missing = append(missing, "dob")
			}
			if p.Gender == "" {
				missing = append(missing, "gender")
			}
			if p.IC == "" && p.Passport == "" {
				missing = append(missing, "ic or passport")
			}
			if len(missing) > 0 {
				return "", &MissingArgsError{Fields: missing}
			}

			id, err := store.RegisterPatient(p)
			if errors.Is(err, clinic.ErrDuplicatePatient) {
				return toJSON(map[string]any{
					"registered": false,
					"duplicate":  true,
				}), nil
			}
			if err != nil {
				return "", err
			}
			return toJSON(map[string]any{
				"registered": true,
				"patient_id": id,
			}), nil
		},
	})

	r.Register(&Tool{
		Name:        "assign_queue",
		Description: "Create today's visit for an identified patient: assigns a queue number and an on-duty doctor based on the severity category.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patient_id": map[string]any{
					"type":        "string",
					"description": "The canonical patient id from patient_lookup",
				},
				"category": map[string]any{
					"type": "string",
					"enum": []string{"critical", "urgent", "moderate", "mild"},
				},
				"notes": map[string]any{
					"type":        "string",
					"description": "Brief symptom notes for the doctor",
				},
			},
			"required": []string{"patient_id", "category"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			patientID := stringArg(args, "patient_id")
			category := stringArg(args, "category")

			var missing []string
			if patientID == "" {
				missing = append(missing, "patient_id")
			}
			if category == "" {
				missing = append(missing, "category")
			}
			if len(missing) > 0 {
				return "", &MissingArgsError{Fields: missing}
			}

			severity, ok := triage.ParseSeverity(category)
			if !ok {
				return "category must be one of: critical, urgent, moderate, mild", nil
			}

			visit, err := store.AssignQueue(patientID, severity, stringArg(args, "notes"))
			if errors.Is(err, clinic.ErrNoDoctorAvailable) {
				return toJSON(map[string]any{"no_doctor_available": true}), nil
			}
			if errors.Is(err, clinic.ErrPatientNotFound) {
				return "No patient record with that id. Run patient_lookup first to get the canonical id.", nil
			}
			if err != nil {
				return "", err
			}
			return toJSON(map[string]any{
				"queue_number": visit.QueueNumber,
				"doctor":       visit.DoctorName,
				"room":         visit.Room,
			}), nil
		},
	})

	r.Register(&Tool{
		Name:        "record_summary",
		Description: "Record the visit summary for the doctor. Always call this after assign_queue.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patient_id": map[string]any{
					"type": "string",
				},
				"category": map[string]any{
					"type": "string",
					"enum": []string{"critical", "urgent", "moderate", "mild"},
				},
				"notes": map[string]any{
					"type":        "string",
					"description": "Summary of symptoms and context gathered during intake",
				},
			},
			"required": []string{"patient_id", "category", "notes"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			patientID := stringArg(args, "patient_id")
			category := stringArg(args, "category")
			notes := stringArg(args, "notes")

			var missing []string
			if patientID == "" {
				missing = append(missing, "patient_id")
			}
			if category == "" {
				missing = append(missing, "category")
			}
			if notes == "" {
				missing = append(missing, "notes")
			}
			if len(missing) > 0 {
				return "", &MissingArgsError{Fields: missing}
			}

			if err := store.RecordSummary(patientID, category, notes); err != nil {
				return "", err
			}
			return toJSON(map[string]any{"recorded": true}), nil
		},
	})

	r.Register(&Tool{
		Name:        "record_feedback",
		Description: "Record optional patient feedback about the intake experience. Only offer this to mild cases.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patient_id": map[string]any{
					"type": "string",
				},
				"feedback": map[string]any{
					"type":        "string",
					"description": "The patient's feedback in their own words",
				},
			},
			"required": []string{"patient_id", "feedback"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			patientID := stringArg(args, "patient_id")
			feedback := stringArg(args, "feedback")

			var missing []string
			if patientID == "" {
				missing = append(missing, "patient_id")
			}
			if feedback == "" {
				missing = append(missing, "feedback")
			}
			if len(missing) > 0 {
				return "", &MissingArgsError{Fields: missing}
			}

			if err := store.RecordFeedback(patientID, feedback); err != nil {
				return "", err
			}
			return toJSON(map[string]any{"recorded": true}), nil
		},
	})
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func toJSON(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"error":"encoding failed"}`
	}
	return string(data)
}
