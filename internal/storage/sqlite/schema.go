package sqlite

const schema = `
-- Documents table: one row per version of a controlled document
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    family_id TEXT NOT NULL,
    version_major INTEGER NOT NULL,
    version_minor INTEGER NOT NULL,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    status TEXT NOT NULL DEFAULT 'draft' CHECK(status IN (
        'draft', 'pending_review', 'under_review', 'reviewed',
        'pending_approval', 'under_approval', 'approved_pending_effective',
        'effective', 'pending_obsolete', 'obsolete', 'superseded',
        'terminated')),
    author TEXT NOT NULL,
    reviewer TEXT NOT NULL DEFAULT '',
    approver TEXT NOT NULL DEFAULT '',
    classification TEXT NOT NULL DEFAULT '',
    controlled INTEGER NOT NULL DEFAULT 1,
    effective_date DATETIME,
    obsolescence_date DATETIME,
    review_due_date DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (family_id, version_major, version_minor)
);

CREATE INDEX IF NOT EXISTS idx_documents_family ON documents(family_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_effective_date ON documents(effective_date);
CREATE INDEX IF NOT EXISTS idx_documents_review_due ON documents(review_due_date);

-- Family invariant: at most one member of a family is effective at any
-- time. An approved-pending-effective member may coexist with the current
-- effective one until activation supersedes it; the engine keeps that half
-- of the invariant (one pending approval per family) itself.
CREATE UNIQUE INDEX IF NOT EXISTS idx_family_single_current
    ON documents(family_id)
    WHERE status = 'effective';

-- Dependency edges: "document depends on family". Edges are deactivated,
-- never deleted, so lineage survives.
CREATE TABLE IF NOT EXISTS edges (
    from_id TEXT NOT NULL,
    from_family_id TEXT NOT NULL,
    to_family_id TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'references' CHECK(type IN
        ('references', 'implements', 'derived-from')),
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL,
    PRIMARY KEY (from_id, to_family_id),
    FOREIGN KEY (from_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_edges_to_family ON edges(to_family_id, active);
CREATE INDEX IF NOT EXISTS idx_edges_from_family ON edges(from_family_id, active);

-- Transition records (audit trail): append-only, no UPDATE or DELETE is
-- ever issued against this table.
CREATE TABLE IF NOT EXISTS transitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id TEXT NOT NULL,
    version TEXT NOT NULL,
    seq INTEGER NOT NULL,
    from_status TEXT NOT NULL DEFAULT '',
    to_status TEXT NOT NULL,
    actor TEXT NOT NULL,
    actor_role TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (document_id, seq),
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_transitions_document ON transitions(document_id, seq);

-- Workflow tasks: outstanding human actions. Overdue tasks escalate
-- rather than being deleted.
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    type TEXT NOT NULL CHECK(type IN ('review', 'approval', 'periodic_review')),
    assignee TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'open' CHECK(state IN ('open', 'done', 'escalated')),
    due_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state);
CREATE INDEX IF NOT EXISTS idx_tasks_document ON tasks(document_id);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_at);

-- Metadata table (internal state such as audit checksums)
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
