package stdlib

import (
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"maru/internal/value"
	"maru/internal/vm"
)

// driverName maps the user-facing database-type string to the
// blank-imported driver name database/sql registered it under.
func driverName(dbType string) (string, error) {
	switch dbType {
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	case "postgres", "postgresql":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlserver", "mssql":
		return "sqlserver", nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// RegisterSQL installs lib.sqlopen/sqlquery/sqlexec/sqlclose: a
// connection handle is a userdata wrapping *sql.DB, with the
// id-keyed connection map a C binding would use collapsed into a
// userdata handle maru scripts hold directly.
func RegisterSQL(m *vm.VM) {
	m.Register("sqlopen", func(abi value.Stack, argc int) (int, error) {
		if argc != 2 {
			return 0, fmt.Errorf("sqlopen requires (driver, dsn)")
		}
		dsn := abi.Pop()
		driver := abi.Pop()
		if !driver.IsString() || !dsn.IsString() {
			return 0, fmt.Errorf("sqlopen requires two strings")
		}
		drv, err := driverName(driver.Str.Bytes)
		if err != nil {
			return 0, err
		}
		db, err := sql.Open(drv, dsn.Str.Bytes)
		if err != nil {
			return 0, fmt.Errorf("sqlopen failed to connect: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return 0, fmt.Errorf("sqlopen failed to ping: %w", err)
		}
		abi.Push(m.Heap.NewUserdata(db))
		return 1, nil
	})

	m.Register("sqlclose", func(abi value.Stack, argc int) (int, error) {
		if argc != 1 {
			return 0, fmt.Errorf("sqlclose requires a handle")
		}
		h := abi.Pop()
		db, err := handleDB(m, h)
		if err != nil {
			return 0, err
		}
		return 0, db.Close()
	})

	m.Register("sqlexec", func(abi value.Stack, argc int) (int, error) {
		if argc < 2 {
			return 0, fmt.Errorf("sqlexec requires (handle, stmt, args...)")
		}
		vals := popN(abi, argc)
		db, err := handleDB(m, vals[0])
		if err != nil {
			return 0, err
		}
		if !vals[1].IsString() {
			return 0, fmt.Errorf("sqlexec requires a string statement")
		}
		stmt := vals[1]
		args := toGoArgs(vals[2:])
		res, err := db.Exec(stmt.Str.Bytes, args...)
		if err != nil {
			return 0, fmt.Errorf("sqlexec failed: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		abi.Push(value.Int(affected))
		return 1, nil
	})

	m.Register("sqlquery", func(abi value.Stack, argc int) (int, error) {
		if argc < 2 {
			return 0, fmt.Errorf("sqlquery requires (handle, stmt, args...)")
		}
		vals := popN(abi, argc)
		db, err := handleDB(m, vals[0])
		if err != nil {
			return 0, err
		}
		if !vals[1].IsString() {
			return 0, fmt.Errorf("sqlquery requires a string statement")
		}
		stmt := vals[1]
		args := toGoArgs(vals[2:])
		rows, err := db.Query(stmt.Str.Bytes, args...)
		if err != nil {
			return 0, fmt.Errorf("sqlquery failed: %w", err)
		}
		defer rows.Close()
		cols, err := rows.Columns()
		if err != nil {
			return 0, err
		}
		result := m.Heap.NewVector()
		vec, _ := m.Heap.Vector(result)
		scan := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range scan {
			ptrs[i] = &scan[i]
		}
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				return 0, err
			}
			rowMap := m.Heap.NewMap()
			mo, _ := m.Heap.Map(rowMap)
			for i, col := range cols {
				mo.Set(value.String(m.Heap.Interner.Intern(col)), fromGo(m, scan[i]))
			}
			vec.Items = append(vec.Items, rowMap)
		}
		abi.Push(result)
		return 1, nil
	})
}

func popN(abi value.Stack, n int) []value.Value {
	vals := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		vals[i] = abi.Pop()
	}
	return vals
}

func handleDB(m *vm.VM, h value.Value) (*sql.DB, error) {
	if h.Kind != value.KUserdata {
		return nil, fmt.Errorf("expected an sql handle, got %s", h.Kind)
	}
	ud, ok := m.Heap.UserdataOf(h)
	if !ok {
		return nil, fmt.Errorf("stale sql handle")
	}
	db, ok := ud.Ptr.(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("userdata is not an sql handle")
	}
	return db, nil
}

func toGoArgs(vals []value.Value) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		switch v.Kind {
		case value.KNil:
			out[i] = nil
		case value.KBool:
			out[i] = v.Bool()
		case value.KInt:
			out[i] = v.Int()
		case value.KFloat:
			out[i] = v.Float()
		case value.KString:
			out[i] = v.Str.Bytes
		default:
			out[i] = v.String()
		}
	}
	return out
}

func fromGo(m *vm.VM, v interface{}) value.Value {
	switch val := v.(type) {
	case nil:
		return value.Nil()
	case bool:
		return value.Bool(val)
	case int64:
		return value.Int(val)
	case int:
		return value.Int(int64(val))
	case float64:
		return value.Float(val)
	case []byte:
		return value.String(m.Heap.Interner.Intern(string(val)))
	case string:
		return value.String(m.Heap.Interner.Intern(val))
	default:
		return value.String(m.Heap.Interner.Intern(fmt.Sprintf("%v", val)))
	}
}
