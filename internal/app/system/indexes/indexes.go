// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called from EnsureSchema. Each collection set is idempotent.
Errors are aggregated so every problem is visible and startup fails fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var problems []string
	for _, set := range Sets() {
		if err := ensureIndexSet(ctx, db.Collection(set.Collection), set.Models, logger); err != nil {
			problems = append(problems, set.Collection+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Set is the desired index list for one collection.
type Set struct {
	Collection string
	Models     []mongo.IndexModel
}

// Sets returns every index the service relies on.
func Sets() []Set {
	return []Set{
		{Collection: "users", Models: usersIndexes()},
		{Collection: "leave_types", Models: leaveTypeIndexes()},
		{Collection: "leave_requests", Models: leaveRequestIndexes()},
		{Collection: "audit_events", Models: auditIndexes()},
	}
}

/* -------------------------------------------------------------------------- */
/* Reconcile a set of desired indexes for one collection                       */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolVal(b *bool) bool { return b != nil && *b }

// IndexOptionsConflict: an index with the same keys exists under another
// name or with other options.
func isOptionsConflictErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "IndexOptionsConflict")
}

func listIndexes(ctx context.Context, coll *mongo.Collection, logger *zap.Logger) map[string]existingIndex {
	out := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return out
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			logger.Warn("failed to decode existing index",
				zap.String("collection", coll.Name()), zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel, logger *zap.Logger) error {
	var errs []string

	for _, m := range models {
		var name string
		var unique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		log := logger.With(
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", boolVal(unique)))

		ex, found := listIndexes(ctx, coll, logger)[sig]
		if !found {
			_, err := coll.Indexes().CreateOne(ctx, m)
			if isOptionsConflictErr(err) {
				ex, found = listIndexes(ctx, coll, logger)[sig]
			}
			if !found {
				if err != nil {
					log.Warn("index ensure failed", zap.Error(err))
					errs = append(errs, describe(coll.Name(), name, sig, unique, err))
					continue
				}
				log.Info("index created", zap.Duration("took", time.Since(start)))
				continue
			}
		}

		// Same keys already indexed.
		if boolVal(unique) == boolVal(ex.Unique) && (name == "" || ex.Name == name) {
			log.Debug("reusing existing index", zap.String("existing", ex.Name))
			continue
		}

		// Name or uniqueness differs: drop and recreate.
		if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
			log.Warn("drop existing index failed", zap.String("existing", ex.Name), zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
			continue
		}
		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			log.Warn("recreate index failed", zap.Error(err))
			errs = append(errs, describe(coll.Name(), name, sig, unique, err))
			continue
		}
		log.Info("index dropped and recreated",
			zap.String("previous", ex.Name),
			zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func describe(coll, name, sig string, unique *bool, err error) string {
	if boolVal(unique) && wafflemongo.IsDup(err) {
		helper := ""
		switch {
		case coll == "users" && strings.Contains(sig, "email:1"):
			helper = " (find them with: " +
				`db.users.aggregate([{ $group: { _id: "$email", n: { $sum: 1 } } }, { $match: { n: { $gt: 1 } } }])` + ")"
		case coll == "leave_types" && strings.Contains(sig, "name:1"):
			helper = " (find them with: " +
				`db.leave_types.aggregate([{ $group: { _id: "$name", n: { $sum: 1 } } }, { $match: { n: { $gt: 1 } } }])` + ")"
		}
		return fmt.Sprintf("%s(%s): cannot create unique index, duplicates present%s", coll, name, helper)
	}
	return fmt.Sprintf("%s(%s): %v", coll, name, err)
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func usersIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		// Email identifies the account; stored lowercased.
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
		},
		// Bulk reset and directory listing: active users by name.
		{
			Keys: bson.D{
				{Key: "is_active", Value: 1},
				{Key: "full_name_ci", Value: 1},
				{Key: "_id", Value: 1},
			},
			Options: options.Index().SetName("idx_users_active_fullnameci_id"),
		},
		// Direct reports of a manager.
		{
			Keys:    bson.D{{Key: "manager_id", Value: 1}},
			Options: options.Index().SetName("idx_users_manager"),
		},
	}
}

func leaveTypeIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_leave_types_name"),
		},
		{
			Keys:    bson.D{{Key: "is_active", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetName("idx_leave_types_active_name"),
		},
	}
}

func leaveRequestIndexes() []mongo.IndexModel {
	newest := bson.E{Key: "created_at", Value: -1}
	id := bson.E{Key: "_id", Value: -1}
	return []mongo.IndexModel{
		// "My requests"
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, newest, id},
			Options: options.Index().SetName("idx_lr_user_created"),
		},
		// Manager queue by assigned manager
		{
			Keys:    bson.D{{Key: "manager_id", Value: 1}, {Key: "status", Value: 1}, newest},
			Options: options.Index().SetName("idx_lr_manager_status_created"),
		},
		// Manager queue by department fallback
		{
			Keys:    bson.D{{Key: "department", Value: 1}, {Key: "status", Value: 1}, newest},
			Options: options.Index().SetName("idx_lr_department_status_created"),
		},
		// Manager queue by snapshotted manager email
		{
			Keys:    bson.D{{Key: "manager_email", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_lr_manager_email_status"),
		},
		// HR queue and global listing
		{
			Keys:    bson.D{{Key: "status", Value: 1}, newest, id},
			Options: options.Index().SetName("idx_lr_status_created"),
		},
	}
}

func auditIndexes() []mongo.IndexModel {
	recent := bson.E{Key: "timestamp", Value: -1}
	return []mongo.IndexModel{
		{
			Keys:    bson.D{recent},
			Options: options.Index().SetName("idx_audit_timestamp"),
		},
		// History of one request
		{
			Keys:    bson.D{{Key: "request_id", Value: 1}, recent},
			Options: options.Index().SetName("idx_audit_request_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, recent},
			Options: options.Index().SetName("idx_audit_user_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "event_type", Value: 1}, recent},
			Options: options.Index().SetName("idx_audit_category_type_timestamp"),
		},
	}
}
