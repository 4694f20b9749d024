package introspect

// Catalog queries. Every query is scoped to one namespace through $1 and
// reads pg_catalog directly; information_schema hides enum and trigger
// details and is much slower on large catalogs.

const databaseQuery = `SELECT current_database()`

const extensionsQuery = `
SELECT e.extname, e.extversion
FROM pg_extension e
WHERE e.extname <> 'plpgsql'
ORDER BY e.extname`

const enumsQuery = `
SELECT t.typname, array_agg(e.enumlabel ORDER BY e.enumsortorder)::text[]
FROM pg_type t
JOIN pg_enum e ON e.enumtypid = t.oid
JOIN pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname = $1
GROUP BY t.typname
ORDER BY t.typname`

const functionsQuery = `
SELECT p.proname,
	pg_get_function_arguments(p.oid),
	pg_get_function_result(p.oid),
	l.lanname,
	p.prosrc
FROM pg_proc p
JOIN pg_namespace n ON n.oid = p.pronamespace
JOIN pg_language l ON l.oid = p.prolang
WHERE n.nspname = $1
	AND p.prokind = 'f'
	AND NOT EXISTS (
		SELECT 1 FROM pg_depend d
		WHERE d.classid = 'pg_proc'::regclass AND d.objid = p.oid AND d.deptype = 'e'
	)
ORDER BY p.proname`

const parametersQuery = `
SELECT unnest(s.setconfig)
FROM pg_db_role_setting s
JOIN pg_database d ON d.oid = s.setdatabase
WHERE d.datname = current_database() AND s.setrole = 0`

const tablesQuery = `
SELECT c.relname
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relkind IN ('r', 'p') AND NOT c.relispartition
ORDER BY c.relname`

const columnsQuery = `
SELECT c.relname,
	a.attname,
	format_type(a.atttypid, a.atttypmod),
	a.attnotnull,
	pg_get_expr(d.adbin, d.adrelid),
	CASE WHEN t.typtype = 'e' THEN t.typname WHEN et.typtype = 'e' THEN et.typname END,
	t.typcategory = 'A'
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
JOIN pg_type t ON t.oid = a.atttypid
LEFT JOIN pg_type et ON et.oid = t.typelem AND t.typcategory = 'A'
LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
WHERE n.nspname = $1
	AND c.relkind IN ('r', 'p')
	AND a.attnum > 0
	AND NOT a.attisdropped
ORDER BY c.relname, a.attnum`

// Key columns are returned in constraint order, not attnum order.
const constraintsQuery = `
SELECT cl.relname,
	con.conname,
	con.contype::text,
	ARRAY(
		SELECT a.attname
		FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		ORDER BY k.ord
	)::text[],
	rc.relname,
	ARRAY(
		SELECT a.attname
		FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum
		ORDER BY k.ord
	)::text[],
	con.confdeltype::text,
	con.confupdtype::text,
	pg_get_constraintdef(con.oid)
FROM pg_constraint con
JOIN pg_class cl ON cl.oid = con.conrelid
JOIN pg_namespace n ON n.oid = cl.relnamespace
LEFT JOIN pg_class rc ON rc.oid = con.confrelid
WHERE n.nspname = $1 AND con.contype IN ('p', 'u', 'f', 'c')
ORDER BY cl.relname, con.conname`

// Indexes owned by a primary key, unique or exclusion constraint are
// reported through the constraint instead.
const indexesQuery = `
SELECT tc.relname,
	ic.relname,
	ARRAY(
		SELECT pg_get_indexdef(i.indexrelid, k, true)
		FROM generate_series(1, i.indnkeyatts) AS k
		ORDER BY k
	)::text[],
	i.indisunique,
	am.amname,
	pg_get_expr(i.indpred, i.indrelid)
FROM pg_index i
JOIN pg_class ic ON ic.oid = i.indexrelid
JOIN pg_class tc ON tc.oid = i.indrelid
JOIN pg_namespace n ON n.oid = tc.relnamespace
JOIN pg_am am ON am.oid = ic.relam
WHERE n.nspname = $1
	AND NOT EXISTS (
		SELECT 1 FROM pg_constraint c
		WHERE c.conindid = i.indexrelid AND c.contype IN ('p', 'u', 'x')
	)
ORDER BY tc.relname, ic.relname`

const triggersQuery = `
SELECT c.relname, t.tgname, t.tgtype, p.proname
FROM pg_trigger t
JOIN pg_class c ON c.oid = t.tgrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
JOIN pg_proc p ON p.oid = t.tgfoid
WHERE n.nspname = $1 AND NOT t.tgisinternal
ORDER BY c.relname, t.tgname`
