package database

import "arblog/internal/model"

// NotifyChannel carries the id of every committed append.
const NotifyChannel = model.TableName

const dropTableSQL = `DROP TABLE IF EXISTS ` + model.TableName

const columnsDDL = `(
	id SERIAL PRIMARY KEY,
	"timestamp" TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
	start_amount_usdt DECIMAL(18, 6),
	end_amount_usdt DECIMAL(18, 6),
	profit_usdt DECIMAL(18, 6),
	profit_percentage DECIMAL(10, 6),
	base_token VARCHAR(10),
	path VARCHAR(100),
	routers VARCHAR(100),
	executed BOOLEAN DEFAULT FALSE
)`

const createTableSQL = `CREATE TABLE ` + model.TableName + ` ` + columnsDDL

const createTableIfMissingSQL = `CREATE TABLE IF NOT EXISTS ` + model.TableName + ` ` + columnsDDL

var indexSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_triangular_arbitrage_log_timestamp ON ` + model.TableName + ` ("timestamp")`,
	`CREATE INDEX IF NOT EXISTS idx_triangular_arbitrage_log_profit ON ` + model.TableName + ` (profit_usdt DESC)`,
}

const stateSQL = `SELECT to_regclass($1) IS NOT NULL`

const insertSQL = `
	INSERT INTO ` + model.TableName + ` ("timestamp", start_amount_usdt, end_amount_usdt, profit_usdt, profit_percentage, base_token, path, routers, executed)
	VALUES (COALESCE($1::timestamptz, CURRENT_TIMESTAMP), $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id`

const notifySQL = `SELECT pg_notify($1, $2)`

// selectColumns keeps scanned values non-NULL for the plain Go fields.
const selectColumns = `id,
	COALESCE("timestamp", to_timestamp(0)) AS "timestamp",
	start_amount_usdt,
	end_amount_usdt,
	profit_usdt,
	profit_percentage,
	COALESCE(base_token, '') AS base_token,
	COALESCE(path, '') AS path,
	COALESCE(routers, '') AS routers,
	COALESCE(executed, FALSE) AS executed`

const statsColumns = `COUNT(*),
	COUNT(*) FILTER (WHERE executed),
	COUNT(*) FILTER (WHERE profit_usdt > 0),
	SUM(profit_usdt),
	ROUND(AVG(profit_usdt), 6),
	MAX(profit_usdt),
	MIN(profit_usdt),
	ROUND((PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY profit_usdt))::numeric, 6),
	ROUND((PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY profit_usdt))::numeric, 6),
	ROUND(AVG(profit_percentage), 6),
	MIN("timestamp"),
	MAX("timestamp")`
