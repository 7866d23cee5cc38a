// Package schema 内嵌数据库建表脚本
package schema

import _ "embed"

// Postgres PostgreSQL 建表脚本
//
//go:embed postgres.sql
var Postgres string

// SQLite SQLite 建表脚本
//
//go:embed sqlite.sql
var SQLite string
