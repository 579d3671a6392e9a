package validators

import "go.mongodb.org/mongo-driver/bson"

var SequenceCounterValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "value", "locked", "last_updated", "created_at"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"value": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
			"locked": bson.M{
				"bsonType": "bool",
			},
			"lock_expires_at": bson.M{
				"bsonType": []string{"date", "null"},
			},
			"lock_token": bson.M{
				"bsonType": "string",
			},
			"last_updated": bson.M{
				"bsonType": "date",
			},
			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
