package store

const schema = `
CREATE TABLE IF NOT EXISTS kegs (
    name TEXT PRIMARY KEY,
    version TEXT NOT NULL,
    revision INTEGER NOT NULL DEFAULT 0,
    variant TEXT NOT NULL DEFAULT 'stable',
    tap TEXT,
    keg_only BOOLEAN NOT NULL DEFAULT 0,
    linked BOOLEAN NOT NULL DEFAULT 0,
    requested BOOLEAN NOT NULL DEFAULT 0,
    poured_from_bottle BOOLEAN NOT NULL DEFAULT 0,
    options TEXT NOT NULL DEFAULT '[]',
    installed_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS keg_dependencies (
    package TEXT NOT NULL,
    depends_on TEXT NOT NULL,
    tag TEXT NOT NULL DEFAULT 'required',
    PRIMARY KEY (package, depends_on),
    FOREIGN KEY (package) REFERENCES kegs(name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS install_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    package TEXT NOT NULL,
    version TEXT NOT NULL,
    action TEXT NOT NULL,
    detail TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_keg_deps_package ON keg_dependencies(package);
CREATE INDEX IF NOT EXISTS idx_keg_deps_depends ON keg_dependencies(depends_on);
CREATE INDEX IF NOT EXISTS idx_events_package ON install_events(package);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON install_events(timestamp);
`
