package validators

import "go.mongodb.org/mongo-driver/bson"

var EditingSessionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"session_id",
			"dashboard_id",
			"user_id",
			"user_name",
			"connected_at",
			"last_activity",
			"version",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"session_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"dashboard_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"user_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"user_name": bson.M{
				"bsonType":  "string",
				"maxLength": 256,
			},

			"user_email": bson.M{
				"bsonType":  "string",
				"maxLength": 320,
			},

			"client_info": bson.M{
				"bsonType": "object",
			},

			"connected_at": bson.M{
				"bsonType": "date",
			},

			"last_activity": bson.M{
				"bsonType": "date",
			},

			"version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},
		},
	},
}
