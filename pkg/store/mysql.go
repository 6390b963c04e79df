/*
Copyright (C) 2022-2024 ApeCloud Co., Ltd

This file is part of KubeBlocks project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/controllerutil"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS universe (
		uuid VARCHAR(36) NOT NULL PRIMARY KEY,
		customer_uuid VARCHAR(36) NOT NULL,
		name VARCHAR(255) NOT NULL,
		update_in_progress BOOLEAN NOT NULL DEFAULT FALSE,
		version INT NOT NULL DEFAULT 0,
		clusters JSON NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS node_details (
		universe_uuid VARCHAR(36) NOT NULL,
		node_name VARCHAR(255) NOT NULL,
		details JSON NOT NULL,
		PRIMARY KEY (universe_uuid, node_name)
	)`,
	`CREATE TABLE IF NOT EXISTS task_info (
		uuid VARCHAR(36) NOT NULL PRIMARY KEY,
		customer_uuid VARCHAR(36) NOT NULL,
		target_uuid VARCHAR(36) NOT NULL,
		task_type VARCHAR(64) NOT NULL,
		phase VARCHAR(32) NOT NULL,
		message TEXT,
		percent_complete INT NOT NULL DEFAULT 0,
		create_time DATETIME(6) NOT NULL,
		update_time DATETIME(6) NOT NULL,
		INDEX idx_task_target (customer_uuid, target_uuid, phase)
	)`,
}

const taskColumns = "uuid, customer_uuid, target_uuid, task_type, phase, message, percent_complete, create_time, update_time"

type mysqlStore struct {
	db *sql.DB
}

var _ Store = &mysqlStore{}

// NewMySQLStore connects to the dsn and creates the tables when missing.
func NewMySQLStore(ctx context.Context, dsn string) (Store, error) {
	mysqlConfig, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "illegal Data Source Name (DSN)")
	}
	mysqlConfig.ParseTime = true
	// rows matched instead of rows changed, an idempotent rewrite is not a miss
	mysqlConfig.ClientFoundRows = true
	db, err := sql.Open("mysql", mysqlConfig.FormatDSN())
	if err != nil {
		return nil, errors.Wrap(err, "get DB connection failed")
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	s := &mysqlStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newMySQLStoreWithDB(db *sql.DB) *mysqlStore {
	return &mysqlStore{db: db}
}

func (s *mysqlStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "create schema failed")
		}
	}
	return nil
}

func (s *mysqlStore) GetUniverse(ctx context.Context, universeUUID string) (*v1alpha1.Universe, error) {
	u := &v1alpha1.Universe{UUID: universeUUID}
	var clusters []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT customer_uuid, name, update_in_progress, version, clusters FROM universe WHERE uuid = ?", universeUUID).
		Scan(&u.CustomerUUID, &u.Name, &u.UpdateInProgress, &u.Version, &clusters)
	if err == sql.ErrNoRows {
		return nil, controllerutil.NewNotFound("universe %s not found", universeUUID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "query universe %s", universeUUID)
	}
	if err = json.Unmarshal(clusters, &u.Clusters); err != nil {
		return nil, errors.Wrapf(err, "decode clusters of universe %s", universeUUID)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT details FROM node_details WHERE universe_uuid = ? ORDER BY node_name", universeUUID)
	if err != nil {
		return nil, errors.Wrapf(err, "query nodes of universe %s", universeUUID)
	}
	defer rows.Close()
	for rows.Next() {
		var details []byte
		if err = rows.Scan(&details); err != nil {
			return nil, err
		}
		node := &v1alpha1.NodeDetails{}
		if err = json.Unmarshal(details, node); err != nil {
			return nil, errors.Wrapf(err, "decode node of universe %s", universeUUID)
		}
		u.Nodes = append(u.Nodes, node)
	}
	return u, rows.Err()
}

func (s *mysqlStore) PutUniverse(ctx context.Context, universe *v1alpha1.Universe) error {
	clusters, err := json.Marshal(universe.Clusters)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO universe (uuid, customer_uuid, name, update_in_progress, version, clusters) VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE customer_uuid = VALUES(customer_uuid), name = VALUES(name),
			update_in_progress = VALUES(update_in_progress), version = version + 1, clusters = VALUES(clusters)`,
			universe.UUID, universe.CustomerUUID, universe.Name, universe.UpdateInProgress, universe.Version, clusters); err != nil {
			return persistenceError(err, "put universe %s", universe.UUID)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM node_details WHERE universe_uuid = ?", universe.UUID); err != nil {
			return persistenceError(err, "put universe %s", universe.UUID)
		}
		for _, node := range universe.Nodes {
			if err := upsertNode(ctx, tx, universe.UUID, node); err != nil {
				return err
			}
		}
		return nil
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertNode(ctx context.Context, db execer, universeUUID string, node *v1alpha1.NodeDetails) error {
	details, err := json.Marshal(node)
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx,
		`INSERT INTO node_details (universe_uuid, node_name, details) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE details = VALUES(details)`,
		universeUUID, node.NodeName, details); err != nil {
		return persistenceError(err, "update node %s", node.NodeName)
	}
	return nil
}

func (s *mysqlStore) SetUniverseUpdating(ctx context.Context, universeUUID string, updating bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE universe SET update_in_progress = ?, version = version + 1 WHERE uuid = ?", updating, universeUUID)
	return checkAffected(res, err, "universe %s", universeUUID)
}

func (s *mysqlStore) UpdateNodeDetails(ctx context.Context, universeUUID string, node *v1alpha1.NodeDetails) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertNode(ctx, tx, universeUUID, node); err != nil {
			return err
		}
		return bumpVersion(ctx, tx, universeUUID)
	})
}

func (s *mysqlStore) SetNodeState(ctx context.Context, universeUUID, nodeName string, state v1alpha1.NodeState) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE node_details SET details = JSON_SET(details, '$.state', ?) WHERE universe_uuid = ? AND node_name = ?",
			string(state), universeUUID, nodeName)
		if err := checkAffected(res, err, "node %s", nodeName); err != nil {
			return err
		}
		return bumpVersion(ctx, tx, universeUUID)
	})
}

func (s *mysqlStore) PersistClusterIntent(ctx context.Context, universeUUID, clusterUUID string, intent v1alpha1.UserIntent) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx, "SELECT clusters FROM universe WHERE uuid = ? FOR UPDATE", universeUUID).Scan(&raw)
		if err == sql.ErrNoRows {
			return controllerutil.NewNotFound("universe %s not found", universeUUID)
		}
		if err != nil {
			return persistenceError(err, "read clusters of universe %s", universeUUID)
		}
		var clusters []v1alpha1.Cluster
		if err = json.Unmarshal(raw, &clusters); err != nil {
			return err
		}
		found := false
		for i := range clusters {
			if clusters[i].UUID == clusterUUID {
				clusters[i].UserIntent = intent.DeepCopy()
				found = true
			}
		}
		if !found {
			return controllerutil.NewNotFound("cluster %s not found in universe %s", clusterUUID, universeUUID)
		}
		if raw, err = json.Marshal(clusters); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, "UPDATE universe SET clusters = ?, version = version + 1 WHERE uuid = ?", raw, universeUUID); err != nil {
			return persistenceError(err, "persist intent of cluster %s", clusterUUID)
		}
		return nil
	})
}

func (s *mysqlStore) CreateTaskRecord(ctx context.Context, r *v1alpha1.TaskRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO task_info ("+taskColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.UUID, r.CustomerUUID, r.TargetUUID, string(r.TaskType), string(r.Phase), r.Message, r.PercentComplete, r.CreateTime, r.UpdateTime)
	if err != nil {
		return persistenceError(err, "create task %s", r.UUID)
	}
	return nil
}

func (s *mysqlStore) UpdateTaskRecord(ctx context.Context, r *v1alpha1.TaskRecord) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE task_info SET phase = ?, message = ?, percent_complete = ?, update_time = ? WHERE uuid = ?",
		string(r.Phase), r.Message, r.PercentComplete, r.UpdateTime, r.UUID)
	return checkAffected(res, err, "task %s", r.UUID)
}

func (s *mysqlStore) GetTaskRecord(ctx context.Context, taskUUID string) (*v1alpha1.TaskRecord, error) {
	records, err := s.queryTasks(ctx, "SELECT "+taskColumns+" FROM task_info WHERE uuid = ?", taskUUID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, controllerutil.NewNotFound("task %s not found", taskUUID)
	}
	return records[0], nil
}

func (s *mysqlStore) FindConflictingTasks(ctx context.Context, customerUUID, targetUUID string, taskTypes ...v1alpha1.TaskType) ([]*v1alpha1.TaskRecord, error) {
	query := "SELECT " + taskColumns + " FROM task_info WHERE customer_uuid = ? AND target_uuid = ? AND phase IN (?, ?)"
	args := []any{customerUUID, targetUUID, string(v1alpha1.TaskCreatedPhase), string(v1alpha1.TaskRunningPhase)}
	if len(taskTypes) > 0 {
		query += " AND task_type IN (?" + strings.Repeat(", ?", len(taskTypes)-1) + ")"
		for _, t := range taskTypes {
			args = append(args, string(t))
		}
	}
	return s.queryTasks(ctx, query+" ORDER BY create_time", args...)
}

func (s *mysqlStore) queryTasks(ctx context.Context, query string, args ...any) ([]*v1alpha1.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query task records")
	}
	defer rows.Close()
	var records []*v1alpha1.TaskRecord
	for rows.Next() {
		r := &v1alpha1.TaskRecord{}
		var taskType, phase string
		var message sql.NullString
		if err = rows.Scan(&r.UUID, &r.CustomerUUID, &r.TargetUUID, &taskType, &phase, &message,
			&r.PercentComplete, &r.CreateTime, &r.UpdateTime); err != nil {
			return nil, err
		}
		r.TaskType = v1alpha1.TaskType(taskType)
		r.Phase = v1alpha1.TaskPhase(phase)
		r.Message = message.String
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *mysqlStore) Close() error {
	return s.db.Close()
}

func (s *mysqlStore) inTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError(err, "begin transaction")
	}
	if err = f(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return persistenceError(err, "commit transaction")
	}
	return nil
}

func bumpVersion(ctx context.Context, tx *sql.Tx, universeUUID string) error {
	res, err := tx.ExecContext(ctx, "UPDATE universe SET version = version + 1 WHERE uuid = ?", universeUUID)
	return checkAffected(res, err, "universe %s", universeUUID)
}

func checkAffected(res sql.Result, err error, format string, a ...any) error {
	if err != nil {
		return persistenceError(err, "update "+format, a...)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistenceError(err, "update "+format, a...)
	}
	if n == 0 {
		return controllerutil.NewNotFound(format+" not found", a...)
	}
	return nil
}
