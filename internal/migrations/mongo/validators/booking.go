package validators

import "go.mongodb.org/mongo-driver/bson"

var integer = bson.A{"int", "long"}

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"facility_id",
			"user_id",
			"purpose",
			"start",
			"end",
			"participants",
			"status",
			"arrival_confirmed",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"facility_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"user_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"purpose": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 500,
			},

			"start": bson.M{
				"bsonType": "date",
			},

			"end": bson.M{
				"bsonType": "date",
			},

			"participants": bson.M{
				"bsonType": integer,
				"minimum":  1,
			},

			"equipment": bson.M{
				"bsonType": "object",
				"properties": bson.M{
					"items": bson.M{
						"bsonType": "array",
						"items":    bson.M{"bsonType": "string"},
					},
					"other": bson.M{
						"bsonType":  "string",
						"maxLength": 500,
					},
				},
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"approved",
					"denied",
					"cancelled",
				},
			},

			"arrival_deadline": bson.M{
				"bsonType": "date",
			},

			"arrival_confirmed": bson.M{
				"bsonType": "bool",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
