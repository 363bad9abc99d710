package sqlite

// schemaVersion is stored in PRAGMA user_version. Opening a database
// written by a newer build fails instead of corrupting it; older
// databases are brought up to date by the idempotent schema below.
const schemaVersion = 1

const schema = `
-- Work items table: projects (parent_id IS NULL) and tasks
CREATE TABLE IF NOT EXISTS work_items (
    id TEXT PRIMARY KEY,
    parent_id TEXT REFERENCES work_items(id),
    name TEXT NOT NULL CHECK(length(name) BETWEEN 1 AND 255),
    description TEXT CHECK(description IS NULL OR length(description) <= 1024),
    status TEXT NOT NULL DEFAULT 'todo' CHECK(status IN ('todo', 'in-progress', 'review', 'done')),
    priority TEXT NOT NULL DEFAULT 'medium' CHECK(priority IN ('high', 'medium', 'low')),
    due_at TEXT,
    order_key TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_work_items_parent ON work_items(parent_id);
CREATE INDEX IF NOT EXISTS idx_work_items_active_status ON work_items(is_active, status);

-- Dependency edges: work_item_id depends on depends_on_id
CREATE TABLE IF NOT EXISTS work_item_dependencies (
    work_item_id TEXT NOT NULL REFERENCES work_items(id),
    depends_on_id TEXT NOT NULL REFERENCES work_items(id),
    dep_type TEXT NOT NULL DEFAULT 'finish-to-start' CHECK(dep_type IN ('finish-to-start', 'linked')),
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (work_item_id, depends_on_id),
    CHECK (work_item_id != depends_on_id)
);

CREATE INDEX IF NOT EXISTS idx_dependencies_item ON work_item_dependencies(work_item_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_depends_on ON work_item_dependencies(depends_on_id);

-- Action history: one row per user-initiated mutation, plus
-- UNDO_ACTION/REDO_ACTION meta entries. The AUTOINCREMENT id is the
-- global history order; created_at is informational.
CREATE TABLE IF NOT EXISTS action_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    action_type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    work_item_id TEXT,
    created_at TEXT NOT NULL,
    is_undone INTEGER NOT NULL DEFAULT 0,
    undone_at_action_id INTEGER REFERENCES action_history(id)
);

CREATE INDEX IF NOT EXISTS idx_action_history_created_at ON action_history(created_at);

-- Undo steps: row-level inverse fragments, applied in reverse
-- step_order during undo. old_data/new_data are JSON column
-- snapshots; record_id is the primary key, composite keys delimited
-- with ':'.
CREATE TABLE IF NOT EXISTS undo_steps (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    action_id INTEGER NOT NULL REFERENCES action_history(id),
    step_order INTEGER NOT NULL,
    step_type TEXT NOT NULL CHECK(step_type IN ('UPDATE', 'INSERT', 'DELETE')),
    table_name TEXT NOT NULL,
    record_id TEXT NOT NULL,
    old_data TEXT,
    new_data TEXT,
    UNIQUE (action_id, step_order)
);

CREATE INDEX IF NOT EXISTS idx_undo_steps_action ON undo_steps(action_id);
`
