package validators

import "go.mongodb.org/mongo-driver/bson"

var CollaborationEventValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"event_type",
			"dashboard_id",
			"user_id",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"event_type": bson.M{
				"enum": []string{
					"session_started",
					"session_stopped",
					"session_expired",
					"lock_acquired",
					"lock_released",
					"lock_expired",
				},
			},

			"dashboard_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"widget_id": bson.M{
				"bsonType":  "string",
				"maxLength": 128,
			},

			"user_id": bson.M{
				"bsonType": "string",
			},

			"data": bson.M{
				"bsonType": "object",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
