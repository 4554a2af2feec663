package app

import "serotonyl.ru/engagement-engine/internal/db/postgres"

// migrations — схема PostgreSQL. SQL встроен в бинарник, отдельных файлов нет.
var migrations = []postgres.Migration{
	{Version: 1, SQL: migration001Counters},
	{Version: 2, SQL: migration002Interactions},
	{Version: 3, SQL: migration003Rewards},
}

var migration001Counters = `
CREATE TABLE IF NOT EXISTS content_counters (
    content_id VARCHAR(64) PRIMARY KEY,
    likes BIGINT NOT NULL DEFAULT 0 CHECK (likes >= 0),
    saves BIGINT NOT NULL DEFAULT 0 CHECK (saves >= 0),
    shares BIGINT NOT NULL DEFAULT 0 CHECK (shares >= 0),
    comments BIGINT NOT NULL DEFAULT 0 CHECK (comments >= 0),
    views BIGINT NOT NULL DEFAULT 0 CHECK (views >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration002Interactions = `
CREATE TABLE IF NOT EXISTS interactions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    content_id VARCHAR(64) NOT NULL,
    kind VARCHAR(16) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, content_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_interactions_content ON interactions(content_id, kind);
`

var migration003Rewards = `
CREATE TABLE IF NOT EXISTS reward_ledger (
    id BIGSERIAL PRIMARY KEY,
    interaction_record_id BIGINT NOT NULL UNIQUE,
    user_id BIGINT NOT NULL,
    points BIGINT NOT NULL,
    reason VARCHAR(64) NOT NULL,
    reference_id VARCHAR(128) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reward_ledger_user ON reward_ledger(user_id, created_at DESC);
CREATE TABLE IF NOT EXISTS reward_balances (
    user_id BIGINT PRIMARY KEY,
    points BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
