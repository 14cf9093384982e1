package repository

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/d60-Lab/socialgraph/internal/apperr"
	"github.com/d60-Lab/socialgraph/internal/model"
)

type neo4jRelationshipStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jRelationshipStore 基于 neo4j 的关系存储；节点标签即 NodeType，关系类型即 EdgeType
func NewNeo4jRelationshipStore(driver neo4j.DriverWithContext, database string) RelationshipStore {
	return &neo4jRelationshipStore{driver: driver, database: database}
}

// EnsureNeo4jSchema 为 User.id / Post.id 建唯一约束，同时得到索引
func EnsureNeo4jSchema(ctx context.Context, driver neo4j.DriverWithContext, database string) error {
	s := &neo4jRelationshipStore{driver: driver, database: database}
	for _, q := range []string{
		`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
		`CREATE CONSTRAINT post_id_unique IF NOT EXISTS FOR (p:Post) REQUIRE p.id IS UNIQUE`,
	} {
		if err := s.write(ctx, "graph.schema", q, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *neo4jRelationshipStore) UpsertEdge(ctx context.Context, e model.Edge) error {
	if err := e.Validate(); err != nil {
		return apperr.BadRequest("%v", err)
	}
	// MERGE 幂等：节点与边不存在时创建，存在时保留较大的 since
	query := fmt.Sprintf(`
		MERGE (a:%s {id: $source})
		MERGE (b:%s {id: $target})
		MERGE (a)-[r:%s]->(b)
		ON CREATE SET r.since = $since
		ON MATCH SET r.since = CASE WHEN r.since < $since THEN $since ELSE r.since END
	`, e.SourceNode().Type, e.TargetNode().Type, e.Type)
	return r.write(ctx, "graph.upsert_edge", query, map[string]any{
		"source": e.Source,
		"target": e.Target,
		"since":  e.Since.UnixMilli(),
	})
}

func (r *neo4jRelationshipStore) DeleteEdge(ctx context.Context, source, target string, t model.EdgeType) (bool, error) {
	st, tt, ok := t.Endpoints()
	if !ok {
		return false, apperr.BadRequest("unknown edge type %q", t)
	}
	query := fmt.Sprintf(`
		MATCH (a:%s {id: $source})-[r:%s]->(b:%s {id: $target})
		DELETE r
		RETURN count(*) AS removed
	`, st, t, tt)
	var removed int64
	err := r.run(ctx, neo4j.AccessModeWrite, query, map[string]any{"source": source, "target": target},
		func(res neo4j.ResultWithContext) error {
			rec, err := res.Single(ctx)
			if err != nil {
				return err
			}
			v, _ := rec.Get("removed")
			removed, _ = v.(int64)
			return nil
		})
	if err != nil {
		return false, apperr.Unavailable("graph.delete_edge", err)
	}
	return removed > 0, nil
}

func (r *neo4jRelationshipStore) EdgeExists(ctx context.Context, source, target string, t model.EdgeType) (bool, error) {
	st, tt, ok := t.Endpoints()
	if !ok {
		return false, apperr.BadRequest("unknown edge type %q", t)
	}
	query := fmt.Sprintf(`
		OPTIONAL MATCH (a:%s {id: $source})-[r:%s]->(b:%s {id: $target})
		RETURN r IS NOT NULL AS found
	`, st, t, tt)
	return r.readBool(ctx, "graph.edge_exists", query, map[string]any{"source": source, "target": target})
}

func (r *neo4jRelationshipStore) NodeExists(ctx context.Context, n model.Node) (bool, error) {
	query := fmt.Sprintf(`OPTIONAL MATCH (n:%s {id: $id}) RETURN n IS NOT NULL AS found`, n.Type)
	return r.readBool(ctx, "graph.node_exists", query, map[string]any{"id": n.ID})
}

func (r *neo4jRelationshipStore) CreateNode(ctx context.Context, n model.Node) error {
	query := fmt.Sprintf(`MERGE (n:%s {id: $id}) ON CREATE SET n.created_at = timestamp()`, n.Type)
	return r.write(ctx, "graph.create_node", query, map[string]any{"id": n.ID})
}

func (r *neo4jRelationshipStore) DeleteNode(ctx context.Context, n model.Node) error {
	query := fmt.Sprintf(`MATCH (n:%s {id: $id}) DETACH DELETE n`, n.Type)
	return r.write(ctx, "graph.delete_node", query, map[string]any{"id": n.ID})
}

func (r *neo4jRelationshipStore) Sources(ctx context.Context, target string, t model.EdgeType) ([]string, error) {
	st, tt, ok := t.Endpoints()
	if !ok {
		return nil, apperr.BadRequest("unknown edge type %q", t)
	}
	query := fmt.Sprintf(`
		MATCH (a:%s)-[r:%s]->(b:%s {id: $id})
		RETURN a.id AS id ORDER BY r.since DESC
	`, st, t, tt)
	return r.readIDs(ctx, "graph.sources", query, target)
}

func (r *neo4jRelationshipStore) Targets(ctx context.Context, source string, t model.EdgeType) ([]string, error) {
	st, tt, ok := t.Endpoints()
	if !ok {
		return nil, apperr.BadRequest("unknown edge type %q", t)
	}
	query := fmt.Sprintf(`
		MATCH (a:%s {id: $id})-[r:%s]->(b:%s)
		RETURN b.id AS id ORDER BY r.since DESC
	`, st, t, tt)
	return r.readIDs(ctx, "graph.targets", query, source)
}

func (r *neo4jRelationshipStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// run 在显式事务中执行一条语句并提交；驱动不做重试，失败交给调用方
func (r *neo4jRelationshipStore) run(ctx context.Context, mode neo4j.AccessMode, query string, params map[string]any,
	collect func(neo4j.ResultWithContext) error) error {
	session := r.session(ctx, mode)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	// 未提交时回滚
	defer tx.Close(ctx)

	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	if err := collect(res); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *neo4jRelationshipStore) write(ctx context.Context, op, query string, params map[string]any) error {
	err := r.run(ctx, neo4j.AccessModeWrite, query, params, func(res neo4j.ResultWithContext) error {
		_, err := res.Consume(ctx)
		return err
	})
	return apperr.Unavailable(op, err)
}

func (r *neo4jRelationshipStore) readBool(ctx context.Context, op, query string, params map[string]any) (bool, error) {
	var found bool
	err := r.run(ctx, neo4j.AccessModeRead, query, params, func(res neo4j.ResultWithContext) error {
		rec, err := res.Single(ctx)
		if err != nil {
			return err
		}
		v, _ := rec.Get("found")
		found, _ = v.(bool)
		return nil
	})
	if err != nil {
		return false, apperr.Unavailable(op, err)
	}
	return found, nil
}

func (r *neo4jRelationshipStore) readIDs(ctx context.Context, op, query, id string) ([]string, error) {
	var out []string
	err := r.run(ctx, neo4j.AccessModeRead, query, map[string]any{"id": id}, func(res neo4j.ResultWithContext) error {
		for res.Next(ctx) {
			v, _ := res.Record().Get("id")
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return res.Err()
	})
	if err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	return out, nil
}
