package validators

import "go.mongodb.org/mongo-driver/bson"

var FacilityValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"name",
			"capacity",
			"active",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"category": bson.M{
				"bsonType":  "string",
				"maxLength": 50,
			},

			"capacity": bson.M{
				"bsonType": integer,
				"minimum":  1,
				"maximum":  10000,
			},

			"active": bson.M{
				"bsonType": "bool",
			},

			"allowed_roles": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "string",
					"enum":     []string{"member", "staff", "admin"},
				},
			},

			"unavailable": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"from", "to"},
					"properties": bson.M{
						"from": bson.M{"bsonType": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
						"to":   bson.M{"bsonType": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
					},
				},
			},
		},
	},
}
