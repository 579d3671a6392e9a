package validators

import "go.mongodb.org/mongo-driver/bson"

var PatientValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "name"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},
			"name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 200,
			},
			"gender": bson.M{
				"bsonType": "string",
			},
			"phone": bson.M{
				"bsonType": "string",
			},
		},
	},
}

var ActivityValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "patient_ref", "action", "created_at"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},
			"patient_ref": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"entry_id": bson.M{
				"bsonType": "string",
			},
			"action": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"description": bson.M{
				"bsonType": "string",
			},
			"actor_ref": bson.M{
				"bsonType": "string",
			},
			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
