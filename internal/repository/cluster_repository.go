package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/stanstork/stratum-replicator/internal/models"
)

type ClusterRepository interface {
	Create(ctx context.Context, c models.Cluster) (models.Cluster, error)
	GetCluster(ctx context.Context, name string) (models.Cluster, error)
	List(ctx context.Context) ([]models.Cluster, error)
}

type clusterRepository struct {
	db *sql.DB
}

func NewClusterRepository(db *sql.DB) ClusterRepository {
	return &clusterRepository{db: db}
}

const clusterColumns = `id, name, description, fs_endpoint, hs_endpoint, local, peers, tags, custom_properties, created_at, updated_at`

func (r *clusterRepository) Create(ctx context.Context, c models.Cluster) (models.Cluster, error) {
	props, err := json.Marshal(nonNilMap(c.CustomProperties))
	if err != nil {
		return models.Cluster{}, fmt.Errorf("marshal custom properties: %w", err)
	}

	query := `
		INSERT INTO replication.clusters (name, description, fs_endpoint, hs_endpoint, local, peers, tags, custom_properties)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + clusterColumns
	row := r.db.QueryRowContext(ctx, query,
		c.Name, c.Description, c.FsEndpoint, c.HsEndpoint, c.Local,
		pq.Array(nonNilSlice(c.Peers)), pq.Array(nonNilSlice(c.Tags)), props,
	)
	out, err := scanCluster(row)
	return out, translate(err)
}

func (r *clusterRepository) GetCluster(ctx context.Context, name string) (models.Cluster, error) {
	query := `SELECT ` + clusterColumns + ` FROM replication.clusters WHERE name = $1`
	c, err := scanCluster(r.db.QueryRowContext(ctx, query, name))
	return c, translate(err)
}

func (r *clusterRepository) List(ctx context.Context) ([]models.Cluster, error) {
	query := `SELECT ` + clusterColumns + ` FROM replication.clusters ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []models.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

func scanCluster(s rowScanner) (models.Cluster, error) {
	var (
		c     models.Cluster
		peers pq.StringArray
		tags  pq.StringArray
		props []byte
	)
	if err := s.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.FsEndpoint,
		&c.HsEndpoint,
		&c.Local,
		&peers,
		&tags,
		&props,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return models.Cluster{}, err
	}
	c.Peers = []string(peers)
	c.Tags = []string(tags)
	if len(props) > 0 {
		if err := json.Unmarshal(props, &c.CustomProperties); err != nil {
			return models.Cluster{}, fmt.Errorf("unmarshal custom properties: %w", err)
		}
	}
	return c, nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
