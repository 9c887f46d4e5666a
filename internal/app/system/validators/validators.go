// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Collections validated or created by EnsureAll.
const (
	UsersCollection         = "users"
	LeaveTypesCollection    = "leave_types"
	LeaveRequestsCollection = "leave_requests"
	AuditCollection         = "audit_events"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll, logger); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema, logger); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				logger.Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure(UsersCollection, usersSchema())
	ensure(LeaveTypesCollection, leaveTypesSchema())
	ensure(LeaveRequestsCollection, leaveRequestsSchema())

	// Append-only; the audit store shapes its own documents.
	ensure(AuditCollection, nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string, logger *zap.Logger) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			return false, nil
		}
		logger.Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	logger.Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M, logger *zap.Logger) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	logger.Debug("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

var (
	nonBlank   = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}
	wholeDays  = bson.A{"int", "long"}
	objectID   = bson.M{"bsonType": "objectId"}
	optionalID = bson.M{"bsonType": bson.A{"objectId", "null"}}
	date       = bson.M{"bsonType": "date"}
)

// Balances may never go below zero.
func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"full_name", "email", "role", "leave_balances", "is_active"},
			"properties": bson.M{
				"full_name":  nonBlank,
				"email":      nonBlank,
				"role":       bson.M{"enum": bson.A{models.RoleEmployee, models.RoleManager, models.RoleHR}},
				"manager_id": optionalID,
				"department": bson.M{"bsonType": "string"},
				"leave_balances": bson.M{
					"bsonType": "object",
					"additionalProperties": bson.M{
						"bsonType": wholeDays,
						"minimum":  0,
					},
				},
				"is_active": bson.M{"bsonType": "bool"},
			},
		},
	}
}

func leaveTypesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "label", "default_days", "requires_approval", "is_active"},
			"properties": bson.M{
				"name":              bson.M{"bsonType": "string", "pattern": "^[a-z][a-z0-9_-]{0,39}$"},
				"label":             nonBlank,
				"default_days":      bson.M{"bsonType": wholeDays, "minimum": 0},
				"requires_approval": bson.M{"bsonType": "bool"},
				"is_active":         bson.M{"bsonType": "bool"},
			},
		},
	}
}

func leaveRequestsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "leave_type", "start_date", "end_date", "days", "status"},
			"properties": bson.M{
				"user_id":    objectID,
				"manager_id": optionalID,
				"leave_type": bson.M{"bsonType": "string", "minLength": 1},
				"start_date": date,
				"end_date":   date,
				"days":       bson.M{"bsonType": wholeDays, "minimum": 1},
				"status": bson.M{"enum": bson.A{
					string(models.StatusPending),
					string(models.StatusManagerApproved),
					string(models.StatusApproved),
					string(models.StatusRejected),
					string(models.StatusCancelled),
				}},
			},
		},
	}
}
