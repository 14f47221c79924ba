package database

// schemas maps database names to their embedded DDL.
// All statements are idempotent so Migrate can run on every startup.
var schemas = map[string]string{
	"core":  coreSchema,
	"cache": cacheSchema,
}

const coreSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS watchlist (
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	symbol     TEXT NOT NULL,
	exchange   TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, symbol, exchange)
);

CREATE TABLE IF NOT EXISTS portfolio_holdings (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id        INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	symbol         TEXT NOT NULL,
	exchange       TEXT NOT NULL,
	quantity       REAL NOT NULL,
	purchase_price REAL NOT NULL,
	purchase_date  TEXT NOT NULL,
	created_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_holdings_user ON portfolio_holdings(user_id);

CREATE TABLE IF NOT EXISTS decisions (
	id                  TEXT PRIMARY KEY,
	symbol              TEXT NOT NULL,
	exchange            TEXT NOT NULL,
	decision            TEXT NOT NULL CHECK (decision IN ('BUY', 'SELL', 'HOLD')),
	confidence          TEXT NOT NULL,
	technical_summary   TEXT NOT NULL DEFAULT '',
	fundamental_summary TEXT NOT NULL DEFAULT '',
	sentiment_summary   TEXT NOT NULL DEFAULT '',
	final_summary       TEXT NOT NULL DEFAULT '',
	price_at_decision   REAL NOT NULL,
	profit_loss         REAL,
	created_at          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON decisions(symbol, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);

CREATE TABLE IF NOT EXISTS decision_users (
	decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
	user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	PRIMARY KEY (decision_id, user_id)
);

CREATE TABLE IF NOT EXISTS weekly_index_predictions (
	id                  TEXT PRIMARY KEY,
	symbol              TEXT NOT NULL,
	prediction_date     TEXT NOT NULL,
	week_start          TEXT NOT NULL,
	week_end            TEXT NOT NULL,
	daily_forecast      BLOB NOT NULL,
	reasoning           TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'RECONCILED')),
	actual_close        REAL,
	performance_summary TEXT,
	reconciled_at       INTEGER,
	created_at          INTEGER NOT NULL,
	UNIQUE (symbol, week_start)
);

CREATE INDEX IF NOT EXISTS idx_predictions_status ON weekly_index_predictions(status, week_start);
`

const cacheSchema = `
CREATE TABLE IF NOT EXISTS stock_data_cache (
	symbol       TEXT NOT NULL,
	exchange     TEXT NOT NULL,
	bars         BLOB NOT NULL,
	indicators   BLOB NOT NULL,
	last_updated INTEGER NOT NULL,
	PRIMARY KEY (symbol, exchange)
);

CREATE INDEX IF NOT EXISTS idx_cache_updated ON stock_data_cache(last_updated);
`
