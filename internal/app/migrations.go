package app

import "serotonyl.ru/passport/internal/db/postgres"

// migrations — схема БД. Новые миграции только добавляются в конец.
var migrations = []postgres.Migration{
	{Version: 1, SQL: migration001Events},
	{Version: 2, SQL: migration002Passport},
	{Version: 3, SQL: migration003Ledger},
	{Version: 4, SQL: migration004Rewards},
	{Version: 5, SQL: migration005Achievements},
}

const migration001Events = `
CREATE TABLE IF NOT EXISTS events (
    id               BIGSERIAL PRIMARY KEY,
    title            VARCHAR(255) NOT NULL,
    event_date       TIMESTAMPTZ NOT NULL,
    location         VARCHAR(255) NOT NULL DEFAULT '',
    access_code      VARCHAR(64) NOT NULL UNIQUE,
    checkin_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
    credits_override BIGINT NOT NULL DEFAULT 0 CHECK (credits_override >= 0),
    is_premium       BOOLEAN NOT NULL DEFAULT FALSE,
    country_code     VARCHAR(2) NOT NULL DEFAULT '',
    carnival_circuit VARCHAR(64),
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migration002Passport = `
CREATE TABLE IF NOT EXISTS passport_profiles (
    user_id         BIGINT PRIMARY KEY,
    handle          VARCHAR(64) NOT NULL UNIQUE,
    total_points    BIGINT NOT NULL DEFAULT 0 CHECK (total_points >= 0),
    current_tier    VARCHAR(16) NOT NULL,
    total_events    INTEGER NOT NULL DEFAULT 0,
    total_countries INTEGER NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS checkins (
    id             BIGSERIAL PRIMARY KEY,
    user_id        BIGINT NOT NULL REFERENCES passport_profiles(user_id),
    event_id       BIGINT NOT NULL REFERENCES events(id),
    credits_earned BIGINT NOT NULL,
    is_premium     BOOLEAN NOT NULL DEFAULT FALSE,
    checkin_method VARCHAR(32) NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_checkins_user_event UNIQUE (user_id, event_id)
);

CREATE TABLE IF NOT EXISTS stamps (
    id               BIGSERIAL PRIMARY KEY,
    user_id          BIGINT NOT NULL REFERENCES passport_profiles(user_id),
    event_id         BIGINT NOT NULL REFERENCES events(id),
    country_code     VARCHAR(2) NOT NULL DEFAULT '',
    carnival_circuit VARCHAR(64),
    points_earned    BIGINT NOT NULL,
    source           VARCHAR(32) NOT NULL,
    earned_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_stamps_user_event UNIQUE (user_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_stamps_user_id ON stamps(user_id);
CREATE INDEX IF NOT EXISTS idx_stamps_earned_at ON stamps(earned_at DESC);
`

const migration003Ledger = `
CREATE TABLE IF NOT EXISTS credit_transactions (
    id                BIGSERIAL PRIMARY KEY,
    user_id           BIGINT NOT NULL REFERENCES passport_profiles(user_id),
    tx_type           VARCHAR(16) NOT NULL CHECK (tx_type IN ('EARN', 'REDEEM', 'ADJUST')),
    reason            VARCHAR(32) NOT NULL,
    amount            BIGINT NOT NULL,
    related_entity_id BIGINT,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_credit_transactions_user ON credit_transactions(user_id, created_at DESC);
`

const migration004Rewards = `
CREATE TABLE IF NOT EXISTS rewards (
    id          BIGSERIAL PRIMARY KEY,
    user_id     BIGINT NOT NULL REFERENCES passport_profiles(user_id),
    reward_type VARCHAR(32) NOT NULL,
    code        VARCHAR(64) NOT NULL,
    metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
    status      VARCHAR(16) NOT NULL DEFAULT 'AVAILABLE' CHECK (status IN ('AVAILABLE', 'REDEEMED', 'EXPIRED')),
    expires_at  TIMESTAMPTZ NOT NULL,
    redeemed_at TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_rewards_user_type_code UNIQUE (user_id, reward_type, code)
);
CREATE INDEX IF NOT EXISTS idx_rewards_available_expiry ON rewards(expires_at) WHERE status = 'AVAILABLE';
`

const migration005Achievements = `
CREATE TABLE IF NOT EXISTS achievement_unlocks (
    id               BIGSERIAL PRIMARY KEY,
    user_id          BIGINT NOT NULL REFERENCES passport_profiles(user_id),
    achievement_code VARCHAR(32) NOT NULL,
    unlocked_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_achievement_unlocks_user_code UNIQUE (user_id, achievement_code)
);
`
