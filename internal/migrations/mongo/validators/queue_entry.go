package validators

import "go.mongodb.org/mongo-driver/bson"

var QueueEntryValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"queue_number",
			"patient_ref",
			"date",
			"sequence_number",
			"status",
			"priority",
			"active",
			"registered_at",
			"status_changed_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"queue_number": bson.M{
				"bsonType": "string",
				"pattern":  `^Q[0-9]{8}-[0-9]{3,}$`,
			},

			"patient_ref": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`,
			},

			"sequence_number": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},

			"status": bson.M{
				"enum": []string{"waiting", "called", "consulting", "done", "cancelled"},
			},

			"priority": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"active": bson.M{
				"bsonType": "bool",
			},

			"status_note": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},

			"registered_by": bson.M{
				"bsonType": "string",
			},

			"registered_at": bson.M{
				"bsonType": "date",
			},

			"called_at": bson.M{
				"bsonType": "date",
			},

			"consulting_started_at": bson.M{
				"bsonType": "date",
			},

			"completed_at": bson.M{
				"bsonType": "date",
			},

			"status_changed_at": bson.M{
				"bsonType": "date",
			},

			"status_changed_by": bson.M{
				"bsonType": "string",
			},
		},
	},
}
