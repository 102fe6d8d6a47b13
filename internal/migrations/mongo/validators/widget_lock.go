package validators

import "go.mongodb.org/mongo-driver/bson"

var WidgetLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"lock_id",
			"dashboard_id",
			"widget_id",
			"owner_user_id",
			"acquired_at",
			"last_heartbeat",
			"ttl_seconds",
			"expires_at",
			"version",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"lock_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"dashboard_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"widget_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"owner_user_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"owner_user_name": bson.M{
				"bsonType":  "string",
				"maxLength": 256,
			},

			"acquired_at": bson.M{
				"bsonType": "date",
			},

			"last_heartbeat": bson.M{
				"bsonType": "date",
			},

			"ttl_seconds": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},

			"expires_at": bson.M{
				"bsonType": "date",
			},

			"version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},
		},
	},
}
