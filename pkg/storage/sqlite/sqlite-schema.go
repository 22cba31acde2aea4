package sqlite

const schema = `
BEGIN TRANSACTION;

CREATE TABLE
	IF NOT EXISTS users (
		id TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		blocked INTEGER NOT NULL DEFAULT FALSE,
		accepts_messages INTEGER NOT NULL DEFAULT TRUE,
		hidden_categories TEXT NOT NULL DEFAULT '[]',
		reset_token TEXT,
		extra TEXT NOT NULL DEFAULT '{}',
		created datetime NOT NULL,
		updated datetime NOT NULL,
		PRIMARY KEY ("id")
	);

CREATE TABLE
	IF NOT EXISTS pending_users (
		id TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		extra TEXT NOT NULL DEFAULT '{}',
		created datetime NOT NULL,
		PRIMARY KEY ("id")
	);

CREATE TABLE
	IF NOT EXISTS jerseys (
		id TEXT NOT NULL,
		owner_email TEXT NOT NULL,
		owner_name TEXT,
		title TEXT NOT NULL,
		team TEXT,
		league TEXT,
		season TEXT,
		player TEXT,
		number TEXT,
		size TEXT,
		brand TEXT,
		category TEXT,
		images TEXT NOT NULL DEFAULT '[]',
		visibility TEXT NOT NULL DEFAULT 'public',
		likes INTEGER NOT NULL DEFAULT 0,
		purchase TEXT NOT NULL DEFAULT '{}',
		extra TEXT NOT NULL DEFAULT '{}',
		created datetime NOT NULL,
		updated datetime NOT NULL,
		PRIMARY KEY ("id")
	);

CREATE INDEX IF NOT EXISTS "Jersey Owner Index" ON "jerseys" ("owner_email" ASC);

CREATE TABLE
	IF NOT EXISTS collection_items (
		id TEXT NOT NULL,
		owner_email TEXT NOT NULL,
		owner_name TEXT,
		title TEXT NOT NULL,
		category TEXT,
		description TEXT,
		images TEXT NOT NULL DEFAULT '[]',
		visibility TEXT NOT NULL DEFAULT 'public',
		likes INTEGER NOT NULL DEFAULT 0,
		purchase TEXT NOT NULL DEFAULT '{}',
		extra TEXT NOT NULL DEFAULT '{}',
		created datetime NOT NULL,
		updated datetime NOT NULL,
		PRIMARY KEY ("id")
	);

CREATE INDEX IF NOT EXISTS "Item Owner Index" ON "collection_items" ("owner_email" ASC);

CREATE TABLE
	IF NOT EXISTS jersey_likes (
		id TEXT NOT NULL,
		collectible_id TEXT NOT NULL,
		user_email TEXT NOT NULL,
		created datetime NOT NULL,
		PRIMARY KEY ("id")
	);

CREATE UNIQUE INDEX IF NOT EXISTS "Like Pair Index" ON "jersey_likes" ("collectible_id", "user_email");

CREATE TABLE
	IF NOT EXISTS comments (
		id TEXT NOT NULL,
		collectible_id TEXT NOT NULL,
		author_email TEXT NOT NULL,
		author_name TEXT,
		body TEXT NOT NULL,
		created datetime NOT NULL,
		PRIMARY KEY ("id")
	);

CREATE INDEX IF NOT EXISTS "Comment Collectible Index" ON "comments" ("collectible_id" ASC);

CREATE TABLE
	IF NOT EXISTS messages (
		id TEXT NOT NULL,
		sender_email TEXT NOT NULL,
		receiver_email TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		body TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT FALSE,
		created datetime NOT NULL,
		PRIMARY KEY ("id")
	);

CREATE INDEX IF NOT EXISTS "Conversation Index" ON "messages" ("conversation_id" ASC);

CREATE TABLE
	IF NOT EXISTS site_content (
		id TEXT NOT NULL,
		content_type TEXT NOT NULL UNIQUE,
		body TEXT,
		updated datetime NOT NULL,
		PRIMARY KEY ("id")
	);

COMMIT;
`
