package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/glennswest/vlanfabric/pkg/network"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	_, err = s.db.Exec(string(schema))
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ─── Networks ───────────────────────────────────────────────────────────────

func (s *SQLiteStore) IsNetworkKnown(tenantID, networkID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM networks WHERE tenant_id = ? AND network_id = ?`,
		tenantID, networkID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying network: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CreateNetwork(seg network.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO networks (id, tenant_id, network_id, segmentation_id, segmentation_type)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(network_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			segmentation_id = excluded.segmentation_id,
			segmentation_type = excluded.segmentation_type
	`, uuid.NewString(), seg.TenantID, seg.NetworkID, seg.SegmentationID, seg.SegmentationType)
	if err != nil {
		return fmt.Errorf("inserting network: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteNetwork(tenantID, networkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM networks WHERE tenant_id = ? AND network_id = ?`, tenantID, networkID)
	if err != nil {
		return fmt.Errorf("deleting network: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSegment(networkID string) (*network.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var seg network.Segment
	err := s.db.QueryRow(`
		SELECT tenant_id, network_id, segmentation_id, segmentation_type
		FROM networks WHERE network_id = ?
	`, networkID).Scan(&seg.TenantID, &seg.NetworkID, &seg.SegmentationID, &seg.SegmentationType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying segment: %w", err)
	}
	return &seg, nil
}

// ─── Ports ──────────────────────────────────────────────────────────────────

func (s *SQLiteStore) IsPortKnown(a network.Assignment) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM ports
		WHERE tenant_id = ? AND network_id = ? AND host_id = ? AND device_id = ? AND port_id = ?
	`, a.TenantID, a.NetworkID, a.HostID, a.DeviceID, a.PortID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying port: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CreatePort(a network.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO ports (id, tenant_id, network_id, host_id, device_id, port_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), a.TenantID, a.NetworkID, a.HostID, a.DeviceID, a.PortID)
	if err != nil {
		return fmt.Errorf("inserting port: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeletePort(a network.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		DELETE FROM ports
		WHERE tenant_id = ? AND network_id = ? AND host_id = ? AND device_id = ? AND port_id = ?
	`, a.TenantID, a.NetworkID, a.HostID, a.DeviceID, a.PortID)
	if err != nil {
		return fmt.Errorf("deleting port: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PortHost(tenantID, networkID, deviceID, portID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var host string
	err := s.db.QueryRow(`
		SELECT host_id FROM ports
		WHERE tenant_id = ? AND network_id = ? AND device_id = ? AND port_id = ?
		LIMIT 1
	`, tenantID, networkID, deviceID, portID).Scan(&host)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying port host: %w", err)
	}
	return host, nil
}

func (s *SQLiteStore) PortCount(networkID, hostID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM ports WHERE network_id = ? AND host_id = ?`,
		networkID, hostID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting ports: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) HostsCarrying(networkID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT DISTINCT host_id FROM ports WHERE network_id = ? ORDER BY host_id`,
		networkID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

// ─── VLAN views ─────────────────────────────────────────────────────────────

func (s *SQLiteStore) ActiveVLANs(hostID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT DISTINCT n.segmentation_id
		FROM ports p JOIN networks n ON n.network_id = p.network_id
		WHERE p.host_id = ? AND n.segmentation_type = ?
		ORDER BY n.segmentation_id
	`, hostID, network.SegmentTypeVLAN)
	if err != nil {
		return nil, fmt.Errorf("querying host vlans: %w", err)
	}
	defer rows.Close()

	var vlans []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		vlans = append(vlans, v)
	}
	return vlans, rows.Err()
}

func (s *SQLiteStore) AllHostVLANs() (map[string][]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT DISTINCT p.host_id, n.segmentation_id
		FROM ports p JOIN networks n ON n.network_id = p.network_id
		WHERE n.segmentation_type = ?
		ORDER BY p.host_id, n.segmentation_id
	`, network.SegmentTypeVLAN)
	if err != nil {
		return nil, fmt.Errorf("querying host vlans: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]int)
	for rows.Next() {
		var host string
		var v int
		if err := rows.Scan(&host, &v); err != nil {
			return nil, err
		}
		out[host] = append(out[host], v)
	}
	return out, rows.Err()
}
