package database

// DatabaseSchema contains the complete PostgreSQL schema for Inkwell.
// This includes all tables, indexes, triggers, and functions required for the application.
const DatabaseSchema = `
-- Enable required extensions
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";
CREATE EXTENSION IF NOT EXISTS "pg_trgm";

-- Users table
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    name TEXT NOT NULL,
    email TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
    session_timeout INT NOT NULL DEFAULT 3600 CHECK (session_timeout > 0),
    password_hash TEXT, -- Argon2id encoded; NULL for federated-only accounts
    provider TEXT, -- Federated identity provider
    uid TEXT, -- Federated identity external id
    api_token_hash BYTEA, -- SHA-256 of the issued bearer token
    token_expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);

-- Email is unique case-insensitively
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (LOWER(email));
-- A federated identity pair may belong to only one account
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_provider_uid ON users (provider, uid)
    WHERE provider IS NOT NULL AND uid IS NOT NULL;
-- Token lookup on every API request
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_api_token_hash ON users (api_token_hash)
    WHERE api_token_hash IS NOT NULL;

-- Notes table: the central entity. The three lifecycle flags are
-- independent booleans; business rules in the handlers keep them coherent
-- (trashing and archiving clear pinned, trashed_at is set iff trashed).
CREATE TABLE IF NOT EXISTS notes (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title TEXT,
    body TEXT NOT NULL DEFAULT '',
    max_size INT NOT NULL DEFAULT 32768 CHECK (max_size > 0),
    pinned BOOLEAN NOT NULL DEFAULT false,
    archived BOOLEAN NOT NULL DEFAULT false,
    trashed BOOLEAN NOT NULL DEFAULT false,
    trashed_at TIMESTAMPTZ,
    search_vector TSVECTOR GENERATED ALWAYS AS (
        setweight(to_tsvector('english', coalesce(title, '')), 'A') ||
        setweight(to_tsvector('english', coalesce(body, '')), 'B')
    ) STORED,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notes_owner ON notes(user_id);
CREATE INDEX IF NOT EXISTS idx_notes_owner_trashed ON notes(user_id, trashed);
CREATE INDEX IF NOT EXISTS idx_notes_owner_archived ON notes(user_id, archived);
CREATE INDEX IF NOT EXISTS idx_notes_owner_pinned ON notes(user_id, pinned);
-- Sweep scans only stale trash
CREATE INDEX IF NOT EXISTS idx_notes_stale_trash ON notes(trashed_at) WHERE trashed = true;
-- Full-text search over title and body
CREATE INDEX IF NOT EXISTS idx_notes_search ON notes USING GIN (search_vector);

-- Note versions: append-only snapshot log of pre-update (title, body)
CREATE TABLE IF NOT EXISTS note_versions (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    note_id UUID NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
    version_number INT NOT NULL,
    title TEXT,
    body TEXT,
    metadata JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE(note_id, version_number)
);

CREATE INDEX IF NOT EXISTS idx_note_versions_note ON note_versions(note_id, version_number DESC);

-- Shares grant a non-owner read-write access to one note. The permission
-- column is an enumerated text so read-only grants can be added without a
-- schema break.
CREATE TABLE IF NOT EXISTS shares (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    note_id UUID NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    permission TEXT NOT NULL DEFAULT 'read_write' CHECK (permission IN ('read_write')),
    created_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE(note_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_shares_user ON shares(user_id);

-- Tags: user-scoped labels, names stored trimmed and lowercased
CREATE TABLE IF NOT EXISTS tags (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    color TEXT, -- Hex color code like #3b82f6, optional
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE(user_id, name)
);

CREATE INDEX IF NOT EXISTS idx_tags_user ON tags(user_id);

-- Junction table for note-tag relationships
CREATE TABLE IF NOT EXISTS note_tags (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    note_id UUID NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
    tag_id UUID NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE(note_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_note_tags_note ON note_tags(note_id);
CREATE INDEX IF NOT EXISTS idx_note_tags_tag ON note_tags(tag_id);

-- File attachments, stored in the database for simplicity
CREATE TABLE IF NOT EXISTS attachments (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    note_id UUID NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
    filename TEXT NOT NULL,
    content BYTEA NOT NULL,
    mime_type TEXT,
    size_bytes BIGINT NOT NULL,
    created_by UUID REFERENCES users(id),
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_attachments_note ON attachments(note_id);

-- Functions for automatic updated_at
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

-- Apply updated_at triggers
DO $$
BEGIN
    IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'update_users_updated_at') THEN
        CREATE TRIGGER update_users_updated_at BEFORE UPDATE ON users
            FOR EACH ROW EXECUTE FUNCTION update_updated_at_column();
    END IF;

    IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'update_notes_updated_at') THEN
        CREATE TRIGGER update_notes_updated_at BEFORE UPDATE ON notes
            FOR EACH ROW EXECUTE FUNCTION update_updated_at_column();
    END IF;

    IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'update_tags_updated_at') THEN
        CREATE TRIGGER update_tags_updated_at BEFORE UPDATE ON tags
            FOR EACH ROW EXECUTE FUNCTION update_updated_at_column();
    END IF;
END $$;

-- Note: the stale-trash sweep runs from the background maintenance service
`
