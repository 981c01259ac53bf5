package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotExist reports a keg the index has no row for. Callers detect it
// with errors.Is.
var ErrNotExist = errors.New("keg not recorded")

// Keg operations

// UpsertKeg inserts or replaces a keg row.
func (s *Store) UpsertKeg(keg *KegRecord) error {
	optionsJSON, err := json.Marshal(keg.Options)
	if err != nil {
		return fmt.Errorf("marshaling options: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO kegs
		(name, version, revision, variant, tap, keg_only, linked, requested, poured_from_bottle, options, installed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		keg.Name,
		keg.Version,
		keg.Revision,
		keg.Variant,
		keg.Tap,
		keg.KegOnly,
		keg.Linked,
		keg.Requested,
		keg.PouredFromBottle,
		string(optionsJSON),
		keg.InstalledAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting keg %s: %w", keg.Name, err)
	}
	return nil
}

const kegColumns = `name, version, revision, variant, tap, keg_only, linked, requested, poured_from_bottle, options, installed_at`

func scanKeg(scan func(...any) error) (*KegRecord, error) {
	var keg KegRecord
	var optionsJSON string
	var installedAt string

	err := scan(
		&keg.Name,
		&keg.Version,
		&keg.Revision,
		&keg.Variant,
		&keg.Tap,
		&keg.KegOnly,
		&keg.Linked,
		&keg.Requested,
		&keg.PouredFromBottle,
		&optionsJSON,
		&installedAt,
	)
	if err != nil {
		return nil, err
	}

	if keg.InstalledAt, err = time.Parse(time.RFC3339, installedAt); err != nil {
		return nil, fmt.Errorf("parsing installed_at for %s: %w", keg.Name, err)
	}
	if err := json.Unmarshal([]byte(optionsJSON), &keg.Options); err != nil {
		return nil, fmt.Errorf("unmarshaling options for %s: %w", keg.Name, err)
	}
	return &keg, nil
}

// GetKeg retrieves a keg by package name.
func (s *Store) GetKeg(name string) (*KegRecord, error) {
	row := s.db.QueryRow(`SELECT `+kegColumns+` FROM kegs WHERE name = ?`, name)
	keg, err := scanKeg(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("keg %s: %w", name, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("getting keg %s: %w", name, err)
	}
	return keg, nil
}

// ListKegs returns every keg ordered by name.
func (s *Store) ListKegs() ([]*KegRecord, error) {
	rows, err := s.db.Query(`SELECT ` + kegColumns + ` FROM kegs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing kegs: %w", err)
	}
	defer rows.Close()

	var kegs []*KegRecord
	for rows.Next() {
		keg, err := scanKeg(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning keg row: %w", err)
		}
		kegs = append(kegs, keg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating kegs: %w", err)
	}
	return kegs, nil
}

// DeleteKeg removes a keg row and, through the cascade, its dependency
// edges.
func (s *Store) DeleteKeg(name string) error {
	result, err := s.db.Exec(`DELETE FROM kegs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting keg %s: %w", name, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting keg %s: %w", name, err)
	}
	if rows == 0 {
		return fmt.Errorf("keg %s: %w", name, ErrNotExist)
	}
	return nil
}

// SetLinked flips the linked flag for a keg.
func (s *Store) SetLinked(name string, linked bool) error {
	result, err := s.db.Exec(`UPDATE kegs SET linked = ? WHERE name = ?`, linked, name)
	if err != nil {
		return fmt.Errorf("updating linked for %s: %w", name, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating linked for %s: %w", name, err)
	}
	if rows == 0 {
		return fmt.Errorf("keg %s: %w", name, ErrNotExist)
	}
	return nil
}

// SetRequested flips the requested flag for a keg.
func (s *Store) SetRequested(name string, requested bool) error {
	result, err := s.db.Exec(`UPDATE kegs SET requested = ? WHERE name = ?`, requested, name)
	if err != nil {
		return fmt.Errorf("updating requested for %s: %w", name, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating requested for %s: %w", name, err)
	}
	if rows == 0 {
		return fmt.Errorf("keg %s: %w", name, ErrNotExist)
	}
	return nil
}

// ResetKegs empties the kegs table ahead of a rescan. Dependency edges go
// with it; install history stays.
func (s *Store) ResetKegs() error {
	if _, err := s.db.Exec(`DELETE FROM kegs`); err != nil {
		return fmt.Errorf("resetting kegs: %w", err)
	}
	return nil
}

// Dependency operations

// ReplaceDependencies swaps in the full runtime edge set for a package.
func (s *Store) ReplaceDependencies(pkg string, deps []DependencyRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replacing dependencies for %s: %w", pkg, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM keg_dependencies WHERE package = ?`, pkg); err != nil {
		return fmt.Errorf("clearing dependencies for %s: %w", pkg, err)
	}
	for _, d := range deps {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO keg_dependencies (package, depends_on, tag) VALUES (?, ?, ?)`,
			pkg, d.DependsOn, d.Tag,
		)
		if err != nil {
			return fmt.Errorf("inserting dependency %s -> %s: %w", pkg, d.DependsOn, err)
		}
	}
	return tx.Commit()
}

// GetDependencies returns the packages pkg depends on, ordered by name.
func (s *Store) GetDependencies(pkg string) ([]DependencyRecord, error) {
	rows, err := s.db.Query(
		`SELECT package, depends_on, tag FROM keg_dependencies WHERE package = ? ORDER BY depends_on`, pkg)
	if err != nil {
		return nil, fmt.Errorf("getting dependencies for %s: %w", pkg, err)
	}
	defer rows.Close()

	var deps []DependencyRecord
	for rows.Next() {
		var d DependencyRecord
		if err := rows.Scan(&d.Package, &d.DependsOn, &d.Tag); err != nil {
			return nil, fmt.Errorf("scanning dependency row: %w", err)
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dependencies: %w", err)
	}
	return deps, nil
}

// GetDependents returns the packages that depend on pkg, ordered by name.
func (s *Store) GetDependents(pkg string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT package FROM keg_dependencies WHERE depends_on = ? ORDER BY package`, pkg)
	if err != nil {
		return nil, fmt.Errorf("getting dependents for %s: %w", pkg, err)
	}
	defer rows.Close()

	var dependents []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning dependent row: %w", err)
		}
		dependents = append(dependents, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dependents: %w", err)
	}
	return dependents, nil
}

// Install event operations

// InsertInstallEvent appends one event to the install history.
func (s *Store) InsertInstallEvent(event *InstallEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO install_events (package, version, action, detail, timestamp) VALUES (?, ?, ?, ?, ?)`,
		event.Package,
		event.Version,
		event.Action,
		event.Detail,
		event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting install event for %s: %w", event.Package, err)
	}
	return nil
}

// ListInstallEvents returns install history, most recent first. An empty
// package matches every package; a limit of 0 means no limit.
func (s *Store) ListInstallEvents(pkg string, limit int) ([]*InstallEvent, error) {
	query := `SELECT id, package, version, action, detail, timestamp FROM install_events`
	var args []any
	if pkg != "" {
		query += ` WHERE package = ?`
		args = append(args, pkg)
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing install events: %w", err)
	}
	defer rows.Close()

	var events []*InstallEvent
	for rows.Next() {
		var event InstallEvent
		var detail sql.NullString
		var timestamp string
		if err := rows.Scan(&event.ID, &event.Package, &event.Version, &event.Action, &detail, &timestamp); err != nil {
			return nil, fmt.Errorf("scanning install event row: %w", err)
		}
		event.Detail = detail.String
		if event.Timestamp, err = time.Parse(time.RFC3339, timestamp); err != nil {
			return nil, fmt.Errorf("parsing event timestamp: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating install events: %w", err)
	}
	return events, nil
}
